// Package orchestrator drives the fixed agent pipeline of a project and the
// bounded correction cycle that follows failed checks.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kazz187/appbuilder/internal/agent"
	"github.com/kazz187/appbuilder/internal/artifact"
	"github.com/kazz187/appbuilder/internal/budget"
	"github.com/kazz187/appbuilder/internal/eventbus"
	"github.com/kazz187/appbuilder/internal/export"
	"github.com/kazz187/appbuilder/internal/invoker"
	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/pkg/cerr"
	"github.com/kazz187/appbuilder/pkg/clog"
	"github.com/kazz187/appbuilder/pkg/panicerr"
)

// ErrTerminal is returned for operations on a project that awaits human
// intervention.
var ErrTerminal = cerr.NewError(cerr.FailedPrecondition, "project requires human intervention", nil)

type Stage struct {
	Agent       string
	Description string
}

// Pipeline is the fixed stage order of a workflow run.
var Pipeline = []Stage{
	{"uiux", "Create the design and UX description"},
	{"project-manager", "Write the technical specification"},
	{"solution-architect", "Make the architecture decisions"},
	{"database-architect", "Generate the database migrations"},
	{"backend-dev", "Implement the backend logic"},
	{"frontend-dev", "Implement the frontend"},
	{"lead-qa", "Run the test suite"},
	{"security-auditor", "Perform the security audit"},
	{"senior-devops", "Prepare the Dockerfile and docker-compose"},
	{"doc-agent", "Generate the documentation and LICENSE"},
}

type AgentSource interface {
	Get(name string) (agent.Config, bool)
}

type Publisher interface {
	PublishNew(eventType eventbus.EventType, projectID string, payload string, metadata map[string]string)
}

// DocsExporter is the best-effort step run after the last stage.
type DocsExporter interface {
	ExportDocs(ctx context.Context, projectID string, st *project.State) export.Result
}

type Config struct {
	MaxCorrectionCycles int
}

type Orchestrator struct {
	repo     project.Repository
	locker   *project.Locker
	agents   AgentSource
	invoker  invoker.Invoker
	governor *budget.Governor
	router   *artifact.Router
	exporter DocsExporter
	bus      Publisher
	metrics  *Metrics
	cfg      Config
	now      func() time.Time
}

type Option func(*Orchestrator)

func WithExporter(e DocsExporter) Option {
	return func(o *Orchestrator) { o.exporter = e }
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.bus = p }
}

func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(
	cfg Config,
	repo project.Repository,
	locker *project.Locker,
	agents AgentSource,
	inv invoker.Invoker,
	governor *budget.Governor,
	router *artifact.Router,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		repo:     repo,
		locker:   locker,
		agents:   agents,
		invoker:  inv,
		governor: governor,
		router:   router,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}
	return o
}

// Activation reports what one activateAgent step did.
type Activation struct {
	Agent     string             `json:"agent"`
	TaskID    string             `json:"task_id,omitempty"`
	Status    project.TaskStatus `json:"status"`
	Reason    string             `json:"reason,omitempty"`
	Cost      float64            `json:"cost,omitempty"`
	Artifacts []string           `json:"artifacts,omitempty"`
}

type RunResult struct {
	State       *project.State `json:"state"`
	Activations []Activation   `json:"activations"`
	Export      export.Result  `json:"export"`
}

// session is one locked load-modify-save span on a project.
type session struct {
	projectID string
	state     *project.State
}

func (o *Orchestrator) open(ctx context.Context, projectID string) (context.Context, *session, func(), error) {
	if err := project.ValidateID(projectID); err != nil {
		return ctx, nil, nil, err
	}
	unlock := o.locker.Lock(projectID)
	ctx = clog.WithProject(ctx, projectID)
	st, err := o.repo.Load(ctx, projectID)
	if err != nil {
		unlock()
		return ctx, nil, nil, err
	}
	return ctx, &session{projectID: projectID, state: st}, unlock, nil
}

// persist saves the session state. A failed save is logged and the pipeline
// goes on; memory and storage may then disagree until the next good save.
func (o *Orchestrator) persist(ctx context.Context, s *session) bool {
	if err := o.repo.Save(ctx, s.projectID, s.state); err != nil {
		slog.ErrorContext(ctx, "failed to persist project state", "error", err)
		return false
	}
	return true
}

func (o *Orchestrator) publish(eventType eventbus.EventType, projectID, payload string, metadata map[string]string) {
	if o.bus == nil {
		return
	}
	o.bus.PublishNew(eventType, projectID, payload, metadata)
}

func initialTasks() []*project.Task {
	tasks := make([]*project.Task, len(Pipeline))
	for i, s := range Pipeline {
		tasks[i] = &project.Task{
			Agent:       s.Agent,
			Description: s.Description,
			Status:      project.TaskPending,
			AssignedTo:  s.Agent,
		}
	}
	return tasks
}

// RunWorkflow replaces the task table with the ten pipeline tasks and runs
// every stage in order, whatever the outcome of earlier stages. Calling it
// again resets progress.
func (o *Orchestrator) RunWorkflow(ctx context.Context, projectID string) (*RunResult, error) {
	ctx, s, unlock, err := o.open(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st := s.state
	if st.Status.IsTerminal() {
		return &RunResult{State: st}, ErrTerminal
	}

	start := o.now()
	st.Tasks = initialTasks()
	st.Status = project.StatusInProgress
	st.IterationCount++
	o.persist(ctx, s)
	o.publish(eventbus.WorkflowStarted, projectID, "", nil)
	slog.InfoContext(ctx, "workflow started", "iteration", st.IterationCount)

	res := &RunResult{State: st, Activations: make([]Activation, 0, len(Pipeline))}
	for _, stage := range Pipeline {
		res.Activations = append(res.Activations, o.activate(ctx, s, stage.Agent))
	}

	res.Export = o.exportDocs(ctx, s)

	if st.Status == project.StatusInProgress {
		st.Status = project.StatusCompleted
	}
	o.persist(ctx, s)
	o.metrics.workflows.WithLabelValues(string(st.Status)).Observe(o.now().Sub(start).Seconds())
	o.publish(eventbus.WorkflowFinished, projectID, string(st.Status), nil)
	slog.InfoContext(ctx, "workflow finished", "status", st.Status, "cost", st.CurrentLLMCost)
	return res, nil
}

func (o *Orchestrator) exportDocs(ctx context.Context, s *session) export.Result {
	if o.exporter == nil {
		return export.Result{Target: "docs", Skipped: true}
	}
	var res export.Result
	err := panicerr.Isolate(ctx, "docs export", func(ctx context.Context) error {
		res = o.exporter.ExportDocs(ctx, s.projectID, s.state)
		return nil
	})
	if err != nil {
		res = export.Result{Target: "docs", Error: err.Error()}
	}
	res.Log(ctx)
	return res
}

// ActivateAgent runs the next pending task of one agent.
func (o *Orchestrator) ActivateAgent(ctx context.Context, projectID, name string) (Activation, *project.State, error) {
	ctx, s, unlock, err := o.open(ctx, projectID)
	if err != nil {
		return Activation{}, nil, err
	}
	defer unlock()
	if s.state.Status.IsTerminal() {
		return Activation{Agent: name, Status: project.TaskSkipped, Reason: "project requires human intervention"}, s.state, ErrTerminal
	}
	return o.activate(ctx, s, name), s.state, nil
}

func (o *Orchestrator) activate(ctx context.Context, s *session, name string) Activation {
	ctx = clog.ContextWithSlog(ctx)
	clog.AddAttribute(ctx, "agent", name)
	st := s.state
	act := Activation{Agent: name}
	defer func() {
		o.metrics.activations.WithLabelValues(name, string(act.Status)).Inc()
	}()

	task := st.NextPendingTask(name)
	if task == nil {
		slog.InfoContext(ctx, "no pending task, agent skipped")
		act.Status, act.Reason = project.TaskSkipped, "no pending task"
		return act
	}
	act.TaskID = task.Label()
	clog.AddAttribute(ctx, "task_id", act.TaskID)

	mark := func(to project.TaskStatus) {
		if err := task.SetStatus(to); err != nil {
			slog.ErrorContext(ctx, "task status not changed", "error", err)
		}
		act.Status = task.Status
	}

	mark(project.TaskInProgress)
	st.LastAgent = name
	o.persist(ctx, s)

	cfg, ok := o.agents.Get(name)
	if !ok {
		slog.WarnContext(ctx, "agent config not found")
		mark(project.TaskFailed)
		act.Reason = "agent config not found"
		o.persist(ctx, s)
		return act
	}

	if !o.governor.Allow(ctx, s.projectID, st) {
		mark(project.TaskFailed)
		act.Reason = "llm cost limit exceeded"
		st.Status = project.StatusLLMCostLimitExceeded
		o.persist(ctx, s)
		o.publish(eventbus.BudgetExhausted, s.projectID, act.Reason, map[string]string{"agent": name})
		return act
	}

	res := o.invoker.Invoke(ctx, invoker.Request{
		Agent:           name,
		Prompt:          cfg.Role,
		Model:           cfg.Model,
		Tools:           cfg.Tools,
		TaskDescription: task.Description,
	})

	switch res.Outcome {
	case invoker.OutcomeDone:
		mark(project.TaskDone)
		act.Cost = o.governor.Record(ctx, s.projectID, st, res.Cost, res.HasCost)
		o.persist(ctx, s)
		written, err := o.router.Apply(ctx, s.projectID, cfg, res.Output)
		if err != nil {
			slog.ErrorContext(ctx, "failed to route agent output", "error", err)
		}
		task.ArtifactsProduced = append(task.ArtifactsProduced, written...)
		act.Artifacts = written
	case invoker.OutcomeSkipped:
		mark(project.TaskSkipped)
	default:
		mark(project.TaskFailed)
		st.Status = project.StatusFailed
		if res.Err != nil {
			act.Reason = res.Err.Error()
		}
		slog.WarnContext(ctx, "agent failed", "error", res.Err)
	}
	o.persist(ctx, s)
	o.publish(eventbus.AgentActivated, s.projectID, string(act.Status), map[string]string{"agent": name, "task_id": act.TaskID})
	slog.InfoContext(ctx, "agent activation finished", "status", act.Status, "cost", act.Cost)
	return act
}

// RepairStuckTasks returns tasks an interrupted activation left in_progress
// to pending so the next run picks them up again.
func (o *Orchestrator) RepairStuckTasks(ctx context.Context, projectID string) ([]string, *project.State, error) {
	ctx, s, unlock, err := o.open(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	reset := s.state.ResetStuckTasks()
	if len(reset) == 0 {
		return []string{}, s.state, nil
	}
	if err := o.repo.Save(ctx, projectID, s.state); err != nil {
		return nil, nil, err
	}
	slog.InfoContext(ctx, "stuck tasks reset", "tasks", reset)
	return reset, s.state, nil
}

// AddTask appends a task to the project table.
func (o *Orchestrator) AddTask(ctx context.Context, projectID string, task *project.Task) (*project.State, error) {
	ctx, s, unlock, err := o.open(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.state.AddTask(task); err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, err.Error(), err)
	}
	if err := o.repo.Save(ctx, projectID, s.state); err != nil {
		return nil, err
	}
	return s.state, nil
}

// State loads the last saved project state. It does not take the project
// lock: saves replace the document atomically, so a read during a run sees
// the state as of the latest completed step.
func (o *Orchestrator) State(ctx context.Context, projectID string) (*project.State, error) {
	if err := project.ValidateID(projectID); err != nil {
		return nil, err
	}
	return o.repo.Load(clog.WithProject(ctx, projectID), projectID)
}

func IsTerminal(err error) bool {
	return errors.Is(err, ErrTerminal)
}
