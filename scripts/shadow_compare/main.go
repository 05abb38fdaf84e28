package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-reschedule-api/internal/legacy"
	"github.com/noah-isme/sma-reschedule-api/internal/repository"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
	"github.com/noah-isme/sma-reschedule-api/internal/service"
	"github.com/noah-isme/sma-reschedule-api/pkg/config"
	"github.com/noah-isme/sma-reschedule-api/pkg/database"
)

// target is one proposed placement both checkers are asked about.
type target struct {
	LessonID  string `json:"lesson_id"`
	ClassID   string `json:"class_id"`
	TeacherID string `json:"teacher_id"`
	RoomID    string `json:"room_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Critical  bool   `json:"critical"`
}

type targetFile struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target         target
	LocalConflict  bool
	LegacyConflict bool
	LocalKinds     []string
	LegacyKinds    []string
	VerdictMatch   bool
	KindsMatch     bool
	Error          error
	DurationLocal  time.Duration
	DurationLegacy time.Duration
}

func main() {
	var (
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "Per-check timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	logr := zap.NewNop()
	local := service.NewBookingConflictChecker(repository.NewBookingRepository(db), logr)
	remote := legacy.NewClient(cfg.Legacy, nil, logr)

	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)
	for _, t := range targets {
		comp := compareTarget(context.Background(), local, remote, t, timeout)
		switch {
		case comp.Error != nil || !comp.VerdictMatch:
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		case !comp.KindsMatch:
			optionalDiff++
		}
		comparisons = append(comparisons, comp)
	}

	printReport(comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file targetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return file.Targets, nil
}

func (t target) query() (scheduling.ConflictQuery, error) {
	date, err := scheduling.ParseFlexibleDate(t.Date)
	if err != nil {
		return scheduling.ConflictQuery{}, fmt.Errorf("date: %w", err)
	}
	interval, err := scheduling.ParseTimes(t.StartTime, t.EndTime)
	if err != nil {
		return scheduling.ConflictQuery{}, fmt.Errorf("times: %w", err)
	}
	return scheduling.ConflictQuery{
		LessonID:         t.LessonID,
		ClassID:          t.ClassID,
		TeacherID:        t.TeacherID,
		RoomID:           t.RoomID,
		Date:             date,
		Interval:         interval,
		ExcludeSubjectID: t.LessonID,
	}, nil
}

func compareTarget(ctx context.Context, local, remote scheduling.ConflictChecker, tgt target, timeout time.Duration) comparison {
	comp := comparison{Target: tgt}
	query, err := tgt.query()
	if err != nil {
		comp.Error = err
		return comp
	}

	localResult, localDur, localErr := check(ctx, local, query, timeout)
	legacyResult, legacyDur, legacyErr := check(ctx, remote, query, timeout)
	comp.DurationLocal = localDur
	comp.DurationLegacy = legacyDur

	if localErr != nil {
		comp.Error = fmt.Errorf("local check failed: %w", localErr)
		return comp
	}
	if legacyErr != nil {
		comp.Error = fmt.Errorf("legacy check failed: %w", legacyErr)
		return comp
	}

	comp.LocalConflict = localResult.HasConflict
	comp.LegacyConflict = legacyResult.HasConflict
	comp.VerdictMatch = comp.LocalConflict == comp.LegacyConflict
	comp.LocalKinds = kinds(localResult)
	comp.LegacyKinds = kinds(legacyResult)
	comp.KindsMatch = strings.Join(comp.LocalKinds, ",") == strings.Join(comp.LegacyKinds, ",")
	return comp
}

func check(ctx context.Context, checker scheduling.ConflictChecker, query scheduling.ConflictQuery, timeout time.Duration) (scheduling.ConflictResult, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	result, err := checker.CheckConflict(ctx, query)
	return result, time.Since(start), err
}

// kinds returns the distinct owner kinds of the conflicts, sorted.
func kinds(result scheduling.ConflictResult) []string {
	seen := make(map[string]struct{})
	for _, c := range result.Conflicts {
		seen[string(c.Kind)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func printReport(results []comparison) {
	fmt.Println("Conflict Shadow Report")
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.VerdictMatch || !res.KindsMatch {
			status = "DIFF"
		}
		t := res.Target
		fmt.Printf("[%s] lesson=%s room=%s teacher=%s %s %s-%s\n", status, t.LessonID, t.RoomID, t.TeacherID, t.Date, t.StartTime, t.EndTime)
		fmt.Printf("  Local: conflict=%t kinds=%v (%s)\n", res.LocalConflict, res.LocalKinds, res.DurationLocal)
		fmt.Printf("  Legacy: conflict=%t kinds=%v (%s)\n", res.LegacyConflict, res.LegacyKinds, res.DurationLegacy)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else {
			fmt.Printf("  Verdict match: %t | Kinds match: %t | Critical: %t\n", res.VerdictMatch, res.KindsMatch, t.Critical)
		}
	}
}
