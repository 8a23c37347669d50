// Command polyglot is a real-time voice translator. It listens on the
// microphone, translates every utterance and shares the results with the
// other members of a room through a websocket relay.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
