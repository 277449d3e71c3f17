package cli

import (
	"fmt"
	"io"
)

func printRobotHelp(w io.Writer) {
	if w == nil {
		return
	}

	// keep: concise; copy-pasteable commands; stable section names
	fmt.Fprint(w, `pagechat Robot Help

Purpose
- poll a Facebook Page Messenger inbox and answer conversations from scripts
- chat with the generative assistant

Quick Start
1) pagechat config show
2) pagechat conversations --json
3) pagechat messages <conversation> --json
4) pagechat send <conversation> "text"

Conversations
- <conversation> is a full ID, an ID prefix or the counterpart name
- messages/send remember the last conversation; "pagechat send <text>" reuses it

Live activity
- pagechat inbox --jsonl          : poll and print inbox events until interrupted
- pagechat events --watch         : tail the event log written by another process

Assistant
- pagechat assistant "question" --image photo.png
- pagechat assistant sessions

Env
- PAGECHAT_GRAPH_PAGE_ID, PAGECHAT_GRAPH_ACCESS_TOKEN, PAGECHAT_ASSISTANT_API_KEY
- a .env file in the working directory is read first

Automation / scripting
- add --json / --jsonl for machine output on every command
- pagechat commands --json prints the full command manifest
`)
}
