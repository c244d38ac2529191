/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"encoding/json"
	"errors"
	"math/rand"
)

// alphabet is used by Gensym.
var alphabet = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

// Gensym makes a random string of the given length.
func Gensym(n int) string {
	bs := make([]byte, n)
	for i := 0; i < len(bs); i++ {
		bs[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(bs)
}

// StringMaps recursively converts map[interface{}]interface{} to
// map[string]interface{}.
//
// Had to go to this trouble because some YAML deserializers like to
// make map[interface{}] instead of map[string].
func StringMaps(x interface{}) (interface{}, error) {
	switch vv := x.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(vv))
		for thing, val := range vv {
			s, is := thing.(string)
			if !is {
				return nil, errors.New("StringMaps encountered a non-string key")
			}
			val, err := StringMaps(val)
			if err != nil {
				return nil, err
			}
			m[s] = val
		}
		return m, nil
	case map[string]interface{}:
		for s, val := range vv {
			val, err := StringMaps(val)
			if err != nil {
				return nil, err
			}
			vv[s] = val
		}
		return vv, nil
	case []interface{}:
		for i, x := range vv {
			y, err := StringMaps(x)
			if err != nil {
				return nil, err
			}
			vv[i] = y
		}
		return vv, nil
	default:
		return x, nil
	}
}

// Canonicalize round-trips the value through JSON.
func Canonicalize(x interface{}) (interface{}, error) {
	x, err := StringMaps(x)
	if err != nil {
		return nil, err
	}

	js, err := json.Marshal(&x)
	if err != nil {
		return nil, err
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return nil, err
	}

	return y, nil
}
