package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sourcegraph/conc/pool"

	"github.com/kazz187/appbuilder/internal/app"
	"github.com/kazz187/appbuilder/internal/config"
	"github.com/kazz187/appbuilder/internal/orchestrator"
	"github.com/kazz187/appbuilder/internal/project"
)

var (
	cli = kingpin.New("appbuilder", "Run the appbuilder agent pipeline against local project state")

	initCmd         = cli.Command("init", "Create a project from a core mandate")
	initMandate     = initCmd.Arg("mandate", "Core mandate text").String()
	initMandateFile = initCmd.Flag("mandate-file", "Read the core mandate from a file").ExistingFile()

	runCmd         = cli.Command("run", "Run the full workflow for one or more projects")
	runIDs         = runCmd.Arg("ids", "Project IDs").Required().Strings()
	runConcurrency = runCmd.Flag("concurrency", "Projects run in parallel").Default("4").Int()

	activateCmd   = cli.Command("activate", "Activate a single agent on its next pending task")
	activateID    = activateCmd.Arg("id", "Project ID").Required().String()
	activateAgent = activateCmd.Arg("agent", "Agent name").Required().String()

	feedbackCmd  = cli.Command("feedback", "Submit user feedback and run a correction cycle")
	feedbackID   = feedbackCmd.Arg("id", "Project ID").Required().String()
	feedbackText = feedbackCmd.Arg("text", "Feedback").Required().String()

	reportCmd      = cli.Command("report", "Ingest a QA or security report")
	reportID       = reportCmd.Arg("id", "Project ID").Required().String()
	reportType     = reportCmd.Flag("type", "Report type").Required().Enum("qa_functional", "security_audit", "user_feedback")
	reportSeverity = reportCmd.Flag("severity", "Severity").Default("medium").Enum("low", "medium", "high")
	reportContent  = reportCmd.Flag("content", "Report content").Required().String()
	reportTask     = reportCmd.Flag("related-task", "Related task id").String()

	testsCmd = cli.Command("run-tests", "Run the containerized test suite and file a report")
	testsID  = testsCmd.Arg("id", "Project ID").Required().String()

	auditCmd = cli.Command("audit", "Run the containerized security scanner and file a report")
	auditID  = auditCmd.Arg("id", "Project ID").Required().String()

	correctCmd     = cli.Command("correct", "Run a correction cycle")
	correctID      = correctCmd.Arg("id", "Project ID").Required().String()
	correctTrigger = correctCmd.Flag("trigger", "What asked for the correction").Default("report").Enum("report", "feedback", "status")

	repairCmd = cli.Command("repair", "Reset tasks left in_progress by an interrupted run")
	repairID  = repairCmd.Arg("id", "Project ID").Required().String()

	statusCmd        = cli.Command("status", "Show project status")
	statusID         = statusCmd.Arg("id", "Project ID").Required().String()
	statusTaskStatus = statusCmd.Flag("task-status", "Filter tasks by status").String()
	statusAssignedTo = statusCmd.Flag("assigned-to", "Filter tasks by agent").String()
	statusReportType = statusCmd.Flag("report-type", "Filter reports by type").String()
	statusSeverity   = statusCmd.Flag("severity", "Filter reports by severity").String()
	statusJSON       = statusCmd.Flag("json", "Print the state document as JSON").Bool()

	agentsCmd = cli.Command("agents", "List configured agents")
)

func main() {
	command := kingpin.MustParse(cli.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	app.SetupLogger(env, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := dispatch(ctx, a, command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.Close()
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, a *app.App, command string) error {
	orch := a.Orchestrator
	switch command {
	case initCmd.FullCommand():
		return handleInit(ctx, a)
	case runCmd.FullCommand():
		return handleRun(ctx, orch, *runIDs, *runConcurrency)
	case activateCmd.FullCommand():
		act, st, err := orch.ActivateAgent(ctx, *activateID, *activateAgent)
		if err != nil {
			return err
		}
		printActivation(act)
		printSummary(*activateID, st)
		return nil
	case feedbackCmd.FullCommand():
		_, res, err := orch.SubmitFeedback(ctx, *feedbackID, *feedbackText)
		if err != nil {
			return err
		}
		printCorrection(*feedbackID, res)
		return nil
	case reportCmd.FullCommand():
		st, err := orch.IngestReport(ctx, *reportID, &project.Report{
			Type:        project.ReportType(*reportType),
			Severity:    project.Severity(*reportSeverity),
			Content:     *reportContent,
			RelatedTask: *reportTask,
		})
		if err != nil {
			return err
		}
		printSummary(*reportID, st)
		return nil
	case testsCmd.FullCommand():
		res, err := a.Reports.RunTests(ctx, *testsID)
		if err != nil {
			return err
		}
		printRunnerResult(*testsID, res.Output, res.Error, res.Report, res.State)
		return nil
	case auditCmd.FullCommand():
		res, err := a.Reports.SecurityAudit(ctx, *auditID)
		if err != nil {
			return err
		}
		printRunnerResult(*auditID, res.Output, res.Error, res.Report, res.State)
		return nil
	case correctCmd.FullCommand():
		res, err := orch.HandleCorrectionCycle(ctx, *correctID, orchestrator.Trigger(*correctTrigger))
		if err != nil {
			return err
		}
		printCorrection(*correctID, res)
		return nil
	case repairCmd.FullCommand():
		reset, _, err := orch.RepairStuckTasks(ctx, *repairID)
		if err != nil {
			return err
		}
		fmt.Printf("Reset %d task(s)\n", len(reset))
		for _, id := range reset {
			fmt.Printf("  %s\n", id)
		}
		return nil
	case statusCmd.FullCommand():
		return handleStatus(ctx, a, *statusID)
	case agentsCmd.FullCommand():
		for _, name := range a.Registry.Names() {
			cfg, _ := a.Registry.Get(name)
			fmt.Printf("%-20s %-20s %v\n", name, cfg.Model, cfg.Tools)
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", command)
}

func handleInit(ctx context.Context, a *app.App) error {
	mandate := *initMandate
	if *initMandateFile != "" {
		data, err := os.ReadFile(*initMandateFile)
		if err != nil {
			return err
		}
		mandate = string(data)
	}
	if mandate == "" {
		return fmt.Errorf("a mandate or --mandate-file is required")
	}
	id, err := a.Repo.Init(ctx, mandate)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

// handleRun runs each project's workflow; projects run in parallel, stages
// within a project stay sequential.
func handleRun(ctx context.Context, orch *orchestrator.Orchestrator, ids []string, concurrency int) error {
	p := pool.New().WithMaxGoroutines(max(concurrency, 1)).WithContext(ctx)
	for _, id := range ids {
		p.Go(func(ctx context.Context) error {
			res, err := orch.RunWorkflow(ctx, id)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			printSummary(id, res.State)
			return nil
		})
	}
	return p.Wait()
}

func handleStatus(ctx context.Context, a *app.App, id string) error {
	st, err := a.Orchestrator.State(ctx, id)
	if err != nil {
		return err
	}
	if *statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(id, st, project.Filter{
		TaskStatus: project.TaskStatus(*statusTaskStatus),
		AssignedTo: *statusAssignedTo,
		ReportType: project.ReportType(*statusReportType),
		Severity:   project.Severity(*statusSeverity),
	})
	return nil
}
