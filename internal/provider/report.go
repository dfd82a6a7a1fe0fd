package provider

import (
	"context"
	"fmt"
	"log/slog"

	"assistant-router/internal/models"
	"assistant-router/internal/stream"
)

// Notifier receives transient status and error messages meant for the user.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// LogNotifier forwards notices to the default slog logger.
type LogNotifier struct{}

func (LogNotifier) Notify(message string) {
	slog.Info("notice", "message", message)
}

// Reporting is the adapter call boundary: every failure, including a panic,
// is normalized, announced on the notifier and returned with an empty result.
type Reporting struct {
	next     Adapter
	notifier Notifier
}

// WithReporting wraps next. A nil notifier logs instead.
func WithReporting(next Adapter, notifier Notifier) *Reporting {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Reporting{next: next, notifier: notifier}
}

// Unwrap returns the wrapped adapter.
func (r *Reporting) Unwrap() Adapter { return r.next }

func (r *Reporting) Family() models.Family { return r.next.Family() }

func (r *Reporting) Model() string { return r.next.Model() }

func (r *Reporting) Text(ctx context.Context, messages []models.Message, sink stream.Func) (text string, err error) {
	defer r.recover(&err)
	text, err = r.next.Text(ctx, messages, sink)
	if err != nil {
		return "", r.report(err)
	}
	return text, nil
}

func (r *Reporting) Image(ctx context.Context, req models.ImageRequest) (urls []string, err error) {
	defer r.recover(&err)
	urls, err = r.next.Image(ctx, req)
	if err != nil {
		return nil, r.report(err)
	}
	return urls, nil
}

func (r *Reporting) SpeechToText(ctx context.Context, audio models.Audio, language string) (text string, err error) {
	defer r.recover(&err)
	text, err = r.next.SpeechToText(ctx, audio, language)
	if err != nil {
		return "", r.report(err)
	}
	return text, nil
}

func (r *Reporting) TextToSpeech(ctx context.Context, text string) (audio models.Audio, err error) {
	defer r.recover(&err)
	audio, err = r.next.TextToSpeech(ctx, text)
	if err != nil {
		return models.Audio{}, r.report(err)
	}
	return audio, nil
}

func (r *Reporting) report(err error) error {
	perr := Normalize(r.next.Family(), err)
	slog.Warn("provider call failed",
		"family", r.next.Family(),
		"model", r.next.Model(),
		"kind", perr.Kind,
		"status", perr.StatusCode,
		"err", perr,
	)
	r.notifier.Notify(perr.Error())
	return perr
}

func (r *Reporting) recover(errp *error) {
	if v := recover(); v != nil {
		*errp = r.report(&Error{
			Kind:     KindBackendProtocol,
			Provider: r.next.Family(),
			Message:  fmt.Sprintf("adapter panic: %v", v),
		})
	}
}
