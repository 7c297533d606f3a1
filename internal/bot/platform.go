package bot

import (
	"context"

	"github.com/suPer8Hu/comet/internal/chat"
)

const (
	ColorGold      = 0xF1C40F
	ColorRed       = 0xE74C3C
	ColorLightGrey = 0x979C9F
)

// Notice is a short status message rendered as a colored embed.
type Notice struct {
	Text  string
	Color int
}

var (
	noticeInputFlagged  = Notice{Text: "**Your prompt was flagged by moderation system**", Color: ColorRed}
	noticeOutputFlagged = Notice{Text: "**The assistant's response was flagged by moderation system.**", Color: ColorRed}
	noticeEmpty         = Notice{Text: "**The assistant's response is empty.**", Color: ColorLightGrey}
	noticeProviderError = Notice{Text: "**An error has occurred while generating the completion.**", Color: ColorRed}
	noticeUnknownError  = Notice{Text: "**An unknown error has occurred.**", Color: ColorRed}
	noticeConfigError   = Notice{Text: "Configuration error occurred. Please try again.", Color: ColorRed}
	noticeUnverified    = Notice{Text: "Unable to verify your message right now. Please try again later.", Color: ColorRed}
	noticeClosing       = Notice{Text: "Context limit reached, closing...", Color: ColorLightGrey}
)

const msgPermissionDenied = "You do not have permission to run this command."

// StartEmbed is the public message a thread is spawned from.
type StartEmbed struct {
	UserID      int64
	Model       string
	Temperature float64
	TopP        float64
	Prompt      string
}

// Responder answers one command invocation.
type Responder interface {
	// Defer acknowledges the command before slow work. Later calls then complete the
	// acknowledged response.
	Defer(ctx context.Context) error
	// Reply sends a message only the invoking user sees.
	Reply(ctx context.Context, text string) error
	Notify(ctx context.Context, n Notice) error
	// OpenThread posts the start embed and spawns a thread from it.
	OpenThread(ctx context.Context, start StartEmbed, name string) (threadID string, err error)
}

// Platform is the thread side of the messaging platform.
type Platform interface {
	Send(ctx context.Context, threadID, text string) error
	Notify(ctx context.Context, threadID string, n Notice) error
	Typing(ctx context.Context, threadID string) error
	// History returns up to limit messages, newest first.
	History(ctx context.Context, threadID string, limit int) ([]chat.PlatformMessage, error)
	// Close locks and archives the thread.
	Close(ctx context.Context, threadID string) error
}
