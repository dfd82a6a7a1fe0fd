package critique

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"assistant-router/internal/config"
	"assistant-router/internal/logging"
	"assistant-router/internal/models"
	"assistant-router/internal/provider"
	"assistant-router/internal/stream"
)

// Delay is the fixed wait between the primary insertion and the critique call.
const Delay = 60 * time.Second

var (
	noticePending   = fmt.Sprintf("Preparing critique... This will take about %d seconds.", int(Delay.Seconds()))
	noticeCompleted = "Critique completed!"
)

// Target receives the insertions and notices produced by a task.
type Target interface {
	provider.Notifier
	ReplaceSelection(text string) error
	InsertAtCursor(text string) error
}

// closeNotifier is implemented by targets that can announce their own
// disposal, letting pending critiques be revoked instead of checked at fire
// time.
type closeNotifier interface {
	OnClose(fn func())
}

// Selector builds adapters for model ids. *router.Router satisfies it.
type Selector interface {
	Select(modelID string, snap config.Snapshot, notifier provider.Notifier) (provider.Adapter, error)
}

// Request is a prompt issued against the current selection of a target.
type Request struct {
	Prompt        string
	Selection     string
	Model         string
	CritiqueModel string
	Critique      bool

	// Sink, when set, streams the primary answer as it arrives.
	Sink stream.Func
}

// Orchestrator runs the primary call, inserts the answer and schedules the
// optional critique.
type Orchestrator struct {
	selector  Selector
	scheduler Scheduler
	logger    *slog.Logger
}

// New constructs an orchestrator. A nil scheduler uses real timers.
func New(selector Selector, scheduler Scheduler) *Orchestrator {
	if scheduler == nil {
		scheduler = timerScheduler{}
	}
	return &Orchestrator{
		selector:  selector,
		scheduler: scheduler,
		logger:    logging.Named("critique"),
	}
}

// Run performs the primary call synchronously and returns the task. When the
// primary call fails the task is already Failed and the error is returned;
// the adapter boundary has reported it to target by then.
func (o *Orchestrator) Run(ctx context.Context, req Request, snap config.Snapshot, target Target) (*Task, error) {
	task := newTask()
	selection := strings.TrimSpace(req.Selection)

	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = snap.Model
	}

	adapter, err := o.selector.Select(model, snap, target)
	if err != nil {
		task.finish(Failed, err)
		return task, err
	}

	answer, err := adapter.Text(ctx, []models.Message{models.UserText(ComposePrompt(req.Prompt, selection))}, req.Sink)
	if err != nil {
		task.finish(Failed, err)
		return task, err
	}
	if answer == "" {
		o.logger.Info("primary answer empty", "task", task.ID, "model", model)
		task.finish(Done, nil)
		return task, nil
	}
	task.setAnswer(answer)

	if err := insertAnswer(target, answer, snap.ReplaceSelection); err != nil {
		o.logger.Warn("primary insertion failed", "task", task.ID, "err", err)
		task.finish(Failed, err)
		return task, err
	}

	if !req.Critique {
		task.finish(Done, nil)
		return task, nil
	}

	critiqueModel := req.CritiqueModel
	if strings.TrimSpace(critiqueModel) == "" {
		critiqueModel = snap.CritiqueModel
	}

	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	task.awaitCritique(cancel)
	target.Notify(noticePending)

	fire := func() {
		o.runCritique(cctx, task, req.Prompt, selection, answer, critiqueModel, snap, target)
	}
	task.setHandle(o.scheduler.AfterFunc(Delay, fire))
	if c, ok := target.(closeNotifier); ok {
		c.OnClose(func() { task.Cancel() })
	}

	o.logger.Debug("critique scheduled", "task", task.ID, "model", critiqueModel, "delay", Delay)
	return task, nil
}

func insertAnswer(target Target, answer string, replace bool) error {
	if replace {
		return target.ReplaceSelection(strings.TrimSpace(answer))
	}
	return target.InsertAtCursor("\n" + strings.TrimSpace(answer))
}

func (o *Orchestrator) runCritique(ctx context.Context, task *Task, prompt, selection, answer, model string, snap config.Snapshot, target Target) {
	if !task.active() || ctx.Err() != nil {
		o.logger.Debug("critique skipped", "task", task.ID, "state", task.State())
		return
	}

	fail := func(err error) {
		if ctx.Err() == nil {
			target.Notify("Error generating critique: " + err.Error())
		}
		task.finish(Failed, err)
	}

	adapter, err := o.selector.Select(model, snap, target)
	if err != nil {
		fail(err)
		return
	}

	critique, err := adapter.Text(ctx, []models.Message{models.UserText(CritiquePrompt(prompt, selection, answer))}, nil)
	if err != nil {
		fail(err)
		return
	}
	if critique == "" {
		task.complete("")
		return
	}

	if err := target.InsertAtCursor(CritiqueBlock(critique)); err != nil {
		o.logger.Info("critique insertion skipped", "task", task.ID, "err", err)
		task.finish(Failed, err)
		return
	}
	target.Notify(noticeCompleted)
	task.complete(critique)
}
