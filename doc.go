// Package scanany provides declarative pipelines: scripts of named
// commands dispatched to pluggable rules.
//
// The engine is in package 'core'.  The bundled rule-sets (HTTP,
// DOM scraping, JavaScript, SQL, MQTT, WebSocket, format transforms,
// casts) are under 'rulesets', and rulesets.NewEngine puts them
// together.
package scanany
