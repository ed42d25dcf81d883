package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"lifuplan/pkg/config"
	"lifuplan/pkg/database"
	"lifuplan/pkg/planning"
	"lifuplan/pkg/registry"
	"lifuplan/pkg/scene"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "lifuplan.yaml", "Path to YAML configuration file")
	dbDir := flag.String("db", "", "Database root directory (overrides config)")
	subjectID := flag.String("subject", "", "Subject id to work on (empty: list subjects)")
	sessionID := flag.String("session", "", "Session id to load (empty: list the subject's sessions)")
	targetID := flag.String("target", "", "Target point id to plan for (default: first session target)")
	approve := flag.Bool("approve", false, "Approve the generated solution")
	recordRun := flag.Bool("record-run", false, "Record a successful run for the approved solution")
	note := flag.String("note", "", "Note to attach to the recorded run")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dbDir != "" {
		cfg.Database.Directory = *dbDir
	}

	db, err := database.Open(cfg.Database.Directory)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	// List mode: no subject or no session selected
	if *subjectID == "" {
		subjects, err := db.SubjectIDs()
		if err != nil {
			log.Fatalf("Failed to list subjects: %v", err)
		}
		fmt.Println("Subjects:")
		for _, id := range subjects {
			fmt.Printf("  %s\n", id)
		}
		os.Exit(0)
	}
	if *sessionID == "" {
		sessions, err := db.SessionIDs(*subjectID)
		if err != nil {
			log.Fatalf("Failed to list sessions: %v", err)
		}
		fmt.Printf("Sessions for subject %s:\n", *subjectID)
		for _, id := range sessions {
			fmt.Printf("  %s\n", id)
		}
		os.Exit(0)
	}

	sc := scene.New()
	reg := registry.New(sc, db, registry.NotifierFunc(func(title, message string) {
		log.Printf("[%s] %s", title, message)
	}))
	reg.OrphanArtifactsOnInvalidate = cfg.Registry.OrphanArtifactsOnInvalidate

	session, err := reg.LoadSession(*subjectID, *sessionID, false)
	if err != nil {
		log.Fatalf("Failed to load session: %v", err)
	}
	if cfg.Output.Verbose {
		log.Printf("Loaded session %s (subject %s, transducer %s, volume %s, %d targets)",
			session.ID(), session.SubjectID(), session.TransducerID(), session.VolumeID(), len(session.TargetNodes))
	}

	protocol, err := db.LoadProtocol(session.ProtocolID())
	if err != nil {
		log.Fatalf("Failed to load protocol %s: %v", session.ProtocolID(), err)
	}
	if err := reg.LoadProtocol(protocol, false); err != nil {
		log.Fatalf("Failed to register protocol: %v", err)
	}

	// Pick the planning target
	if len(session.TargetNodes) == 0 {
		log.Fatalf("Session %s has no targets", session.ID())
	}
	target := session.TargetNodes[0]
	if *targetID != "" {
		target = nil
		for _, node := range session.TargetNodes {
			if node.Name() == *targetID {
				target = node
				break
			}
		}
		if target == nil {
			log.Fatalf("Session %s has no target %q", session.ID(), *targetID)
		}
	}

	transducer, ok := reg.Transducer(session.TransducerID())
	if !ok {
		log.Fatalf("Transducer %s is not loaded", session.TransducerID())
	}

	fmt.Println("================================")
	fmt.Println("LIFU TREATMENT PLANNING")
	fmt.Println("================================")
	fmt.Printf("Planning target %s with protocol %s...\n", target.Name(), protocol.ID)

	plan, err := planning.GeneratePlan(sc, protocol, transducer, target, session.VolumeNode,
		planning.GeometricBeamformer{},
		planning.SyntheticSimulator{PeakPressure: cfg.Planning.PeakPressure})
	if err != nil {
		log.Fatalf("Planning failed: %v", err)
	}
	reg.SetActivePlan(plan)

	solution := planning.SolutionFromPlan(
		fmt.Sprintf("solution_%s", uuid.NewString()[:8]),
		fmt.Sprintf("%s for %s", protocol.Name, target.Label),
		plan, protocol, transducer, target.Name())
	solution.Approved = *approve
	if err := reg.SetActiveSolution(solution); err != nil {
		log.Fatalf("Failed to store solution: %v", err)
	}

	fmt.Printf("\nPlanning completed: %d foci\n", len(plan.Foci))
	fmt.Printf("Peak negative pressure (max): %.4f\n", floats.Max(plan.PNPNode.Field.Data))
	fmt.Printf("Time-averaged intensity (max): %.4f\n", floats.Max(plan.IntensityNode.Field.Data))
	fmt.Printf("Solution %s saved (approved: %v)\n", solution.ID, solution.Approved)

	if *recordRun {
		run, err := reg.RecordRun(true, *note)
		if err != nil {
			log.Fatalf("Failed to record run: %v", err)
		}
		fmt.Printf("Run %s recorded\n", run.ID)
	}

	if err := reg.SaveSession(); err != nil {
		log.Fatalf("Failed to save session: %v", err)
	}
	if cfg.Output.Verbose {
		log.Printf("Session %s saved", session.ID())
	}
}
