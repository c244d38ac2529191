package core

// Command is one step in a Script.
//
// A Command is either Bare (just a name, in which case the payload is
// that name) or Keyed (a name and an arbitrary payload).  A Command
// can also be deferred: a $ref or $const sentinel that's resolved
// against the State when the Command is dispatched.
type Command struct {
	Name    string
	Payload interface{}
	Bare    bool

	deferred interface{}
}

// Script is an ordered sequence of Commands.
type Script []Command

// Bare makes a Command that's just a name.
func Bare(name string) Command {
	return Command{
		Name:    name,
		Payload: name,
		Bare:    true,
	}
}

// Keyed makes a Command with a payload.
func Keyed(name string, payload interface{}) Command {
	return Command{
		Name:    name,
		Payload: payload,
	}
}

// Deferred reports whether this Command is a sentinel that needs
// resolution.
func (c Command) Deferred() bool {
	return c.deferred != nil
}

func (c Command) String() string {
	if c.Deferred() {
		return "<deferred>"
	}
	return c.Name
}

// ParseCommand decodes a string or a single-entry map into a Command.
func ParseCommand(x interface{}) (Command, error) {
	switch vv := x.(type) {
	case Command:
		return vv, nil
	case *Command:
		if vv == nil {
			return Command{}, &BadCommand{x, "nil"}
		}
		return *vv, nil
	case string:
		if vv == "" {
			return Command{}, &BadCommand{x, "empty name"}
		}
		return Bare(vv), nil
	}

	m, is := AsMap(x)
	if !is {
		return Command{}, &BadCommand{x, "not a string or a map"}
	}
	if IsSentinel(m) {
		return Command{deferred: m}, nil
	}
	if len(m) != 1 {
		return Command{}, &BadCommand{x, "need exactly one key"}
	}
	for name, payload := range m {
		if name == "" {
			return Command{}, &BadCommand{x, "empty name"}
		}
		return Keyed(name, payload), nil
	}
	panic("unreachable")
}

// ParseScript decodes a sequence of commands.  A single command is a
// Script of length one.  Nil is the empty Script.
func ParseScript(x interface{}) (Script, error) {
	switch vv := x.(type) {
	case nil:
		return Script{}, nil
	case Script:
		return vv, nil
	case []Command:
		return Script(vv), nil
	case []interface{}:
		acc := make(Script, 0, len(vv))
		for _, y := range vv {
			c, err := ParseCommand(y)
			if err != nil {
				return nil, err
			}
			acc = append(acc, c)
		}
		return acc, nil
	case []string:
		acc := make(Script, 0, len(vv))
		for _, s := range vv {
			c, err := ParseCommand(s)
			if err != nil {
				return nil, err
			}
			acc = append(acc, c)
		}
		return acc, nil
	case []map[string]interface{}:
		acc := make(Script, 0, len(vv))
		for _, m := range vv {
			c, err := ParseCommand(m)
			if err != nil {
				return nil, err
			}
			acc = append(acc, c)
		}
		return acc, nil
	default:
		c, err := ParseCommand(x)
		if err != nil {
			return nil, err
		}
		return Script{c}, nil
	}
}
