package chatgpt

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-go-golems/regpt/pkg/events"
	"github.com/go-go-golems/regpt/pkg/stream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const chatRequirementsHeader = "openai-sentinel-chat-requirements-token"

type promptOptions struct {
	mode       stream.ContentMode
	bufferSize int
}

type PromptOption func(*promptOptions)

// WithContentMode declares whether the backend repeats the full message in
// every update (the default) or only sends what is new.
func WithContentMode(mode stream.ContentMode) PromptOption {
	return func(o *promptOptions) {
		o.mode = mode
	}
}

// WithStreamBufferSize sets how many decoded updates may queue up while the
// caller is busy.
func WithStreamBufferSize(n int) PromptOption {
	return func(o *promptOptions) {
		o.bufferSize = n
	}
}

// PromptStream yields the answer to one prompt as a sequence of content
// increments. Nothing is sent before the first call to Next. Answers cut off
// by the backend's length limit are continued transparently.
//
// Every increment is also published as an events.EventPartial to the sinks
// attached to the context passed to Prompt.
type PromptStream struct {
	conv *Conversation
	ctx  context.Context
	text string
	opts promptOptions

	started bool
	holding bool
	done    bool
	err     error

	pass        int
	body        *stream.Stream
	differ      *stream.Differ
	last        stream.Delta
	passDeltas  int
	totalDeltas int

	current    stream.Delta
	raw        strings.Builder
	completion strings.Builder
}

// Prompt returns the stream answering text. The stream must be drained or
// closed before the next prompt on the same conversation.
func (conv *Conversation) Prompt(ctx context.Context, text string, options ...PromptOption) *PromptStream {
	o := promptOptions{mode: stream.ContentCumulative, bufferSize: -1}
	for _, opt := range options {
		opt(&o)
	}
	return &PromptStream{
		conv:   conv,
		ctx:    ctx,
		text:   text,
		opts:   o,
		differ: stream.NewDiffer(o.mode),
	}
}

func (p *PromptStream) metadata() events.EventMetadata {
	return events.EventMetadata{
		ConversationID: p.conv.ID,
		MessageID:      p.last.MessageID,
		ParentID:       p.last.ParentID,
		Model:          p.conv.Model.Name,
		Pass:           p.pass,
	}
}

// Next advances to the next increment. It returns false when the answer is
// complete or an error occurred; see Err.
func (p *PromptStream) Next() bool {
	if p.done {
		return false
	}
	if !p.started {
		p.started = true
		if err := p.start(); err != nil {
			p.fail(err)
			return false
		}
	}

	for {
		if p.body.Next() {
			p.accept(p.body.Current())
			return true
		}

		readErr := p.body.Err()
		p.raw.WriteString(p.body.Raw())
		_ = p.body.Close()
		p.body = nil

		if err := p.ctx.Err(); err != nil {
			p.fail(err)
			return false
		}
		if readErr != nil {
			// a broken connection ends the pass like the end of the stream does
			log.Warn().Err(readErr).Int("pass", p.pass).Msg("Conversation stream interrupted")
		}
		if p.totalDeltas == 0 {
			p.fail(p.emptyResponseError())
			return false
		}
		if p.passDeltas == 0 || !p.last.CutOff {
			p.finish()
			return false
		}

		log.Debug().Object("delta", p.last).Int("pass", p.pass).Msg("Answer was cut off, continuing")
		events.PublishEventToContext(p.ctx, events.NewContinuationEvent(p.metadata()))
		if err := p.send(ActionContinue); err != nil {
			p.fail(err)
			return false
		}
	}
}

func (p *PromptStream) start() error {
	if !p.conv.inFlight.CompareAndSwap(false, true) {
		return ErrPromptInProgress
	}
	p.holding = true

	if err := p.conv.client.checkOpen(); err != nil {
		return err
	}
	if err := p.conv.Configure(p.ctx); err != nil {
		return err
	}
	events.PublishEventToContext(p.ctx, events.NewStartEvent(p.metadata(), p.text))
	return p.send(ActionNext)
}

// send posts the payload for the next pass and starts decoding its response.
func (p *PromptStream) send(action string) error {
	conv := p.conv
	c := conv.client

	p.pass++
	p.passDeltas = 0
	p.differ.Reset()

	token, err := conv.arkoseToken(p.ctx)
	if err != nil {
		return err
	}
	payload := conv.buildPayload(action, p.text, token)

	e := c.settings.Endpoints
	req, err := c.newRequest(p.ctx, http.MethodPost, e.Resolve(e.Conversation), payload)
	if err != nil {
		return err
	}
	if sentinel := conv.chatRequirementsToken(p.ctx); sentinel != "" {
		req.Header.Set(chatRequirementsHeader, sentinel)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending conversation request")
	}
	log.Debug().Object("payload", payload).Int("status", resp.StatusCode).Int("pass", p.pass).Msg("Sent conversation request")

	var opts []stream.Option
	if p.opts.bufferSize >= 0 {
		opts = append(opts, stream.WithBufferSize(p.opts.bufferSize))
	}
	p.body = stream.New(p.ctx, resp.Body, opts...)
	return nil
}

func (p *PromptStream) accept(d stream.Delta) {
	p.passDeltas++
	p.totalDeltas++
	p.last = d

	if d.ConversationID != "" {
		p.conv.ID = d.ConversationID
	}
	if d.MessageID != "" {
		p.conv.ParentID = d.MessageID
	}

	p.current = p.differ.Apply(d)
	p.completion.WriteString(p.current.Content)
	events.PublishEventToContext(p.ctx, events.NewPartialEvent(p.metadata(), p.current.Content, p.completion.String()))
}

func (p *PromptStream) emptyResponseError() error {
	raw := p.raw.String()
	if strings.Contains(raw, markerTokenExpired) {
		return ErrInvalidSessionToken
	}
	return &NoResponseChunksError{ServerResponse: raw}
}

func (p *PromptStream) finish() {
	p.done = true
	p.release()
	events.PublishEventToContext(p.ctx, events.NewFinalEvent(p.metadata(), p.completion.String()))
	log.Debug().Object("conversation", p.conv).Int("passes", p.pass).Int("deltas", p.totalDeltas).Msg("Prompt finished")
}

func (p *PromptStream) fail(err error) {
	p.done = true
	p.err = err
	p.release()
	events.PublishEventToContext(p.ctx, events.NewErrorEvent(p.metadata(), err))
}

func (p *PromptStream) release() {
	if p.holding {
		p.holding = false
		p.conv.inFlight.Store(false)
	}
}

// Current returns the increment Next advanced to. Its Content holds only
// text not returned before.
func (p *PromptStream) Current() stream.Delta {
	return p.current
}

func (p *PromptStream) Err() error {
	return p.err
}

// Close abandons the prompt, aborting any response still being read.
func (p *PromptStream) Close() error {
	var err error
	if p.body != nil {
		err = p.body.Close()
		p.body = nil
	}
	p.done = true
	p.release()
	return err
}

// Collect drains the stream and returns the whole answer.
func (p *PromptStream) Collect() (string, error) {
	defer func() { _ = p.Close() }()
	for p.Next() {
	}
	return p.completion.String(), p.Err()
}
