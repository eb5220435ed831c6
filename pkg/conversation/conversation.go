// Package conversation is the model side of a voice order session: it opens
// a realtime session with a language model, pushes messages and audio into
// it, and exposes what the model says as a lazy stream of Events.
//
// The stream is pulled with Session.Next, which blocks until the next event
// arrives, the session ends, or the context is cancelled. A stream cannot be
// restarted; open a new Session instead.
//
// Example usage:
//
//	opener, err := conversation.NewOpenAI(
//	    conversation.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    conversation.WithTools(submitOrderTool),
//	)
//	if err != nil {
//	    return err
//	}
//
//	sess, err := opener.Open(ctx, instructions, []conversation.Modality{conversation.ModalityAudio, conversation.ModalityText})
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	_ = sess.Send(ctx, conversation.Message{Role: conversation.RoleAgent, Text: "Greet the customer.", Respond: true})
//	for {
//	    ev, err := sess.Next(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    // handle ev
//	}
package conversation

import "context"

// Opener opens model sessions.
type Opener interface {
	// Open starts a realtime session configured with the instruction text and
	// output modalities.
	Open(ctx context.Context, instructions string, modalities []Modality) (Session, error)
}

// Session is one live exchange with the model.
type Session interface {
	// Send adds a message to the conversation. If msg.Respond is set the model
	// is asked to produce a response.
	Send(ctx context.Context, msg Message) error

	// SendAudio streams PCM16 mono audio at the provider input sample rate.
	SendAudio(pcm []byte) error

	// SubmitToolResult returns the output of a tool call and asks the model
	// to continue.
	SubmitToolResult(callID, output string) error

	// Next blocks until the next event. It returns ctx.Err() when ctx is done
	// and ErrSessionClosed once the stream is exhausted.
	Next(ctx context.Context) (Event, error)

	// Close ends the session and releases the connection. It is safe to call
	// more than once.
	Close() error
}

// Ensure the implementations satisfy the interfaces.
var (
	_ Opener  = (*OpenAI)(nil)
	_ Session = (*openAISession)(nil)
	_ Opener  = (*Mock)(nil)
	_ Session = (*MockSession)(nil)
)
