// Package sink delivers decoded records to their consumers: a terminal or
// file (Writer), an MQTT broker and a nanomsg PUB socket. Fanout connects
// one record stream to several sinks, each behind its own bounded queue.
package sink
