// Package format turns decoded frames into records and renders them.
//
// A Record is the flattened view of one frame shared by every consumer:
// the terminal writer, the WebSocket relay and the MQTT and nanomsg
// publishers. Three encodings are available:
//
//   - text: one aligned, optionally coloured line per record
//   - json: newline-delimited JSON
//   - msgpack: concatenated msgpack maps, the default MQTT payload
//
// Fixed-point arguments carry their scaled value in Value and the raw
// integer in Raw. 128-bit integers are rendered as decimal strings and raw
// data as hex so every encoding can represent them.
package format
