package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
)

func fixedChecker(result scheduling.ConflictResult, err error) scheduling.ConflictChecker {
	return scheduling.ConflictCheckerFunc(func(ctx context.Context, q scheduling.ConflictQuery) (scheduling.ConflictResult, error) {
		return result, err
	})
}

var sample = target{LessonID: "l1", RoomID: "r1", TeacherID: "t1", Date: "2024-03-05", StartTime: "07:30", EndTime: "09:30"}

func TestCompareTargetMatchingVerdicts(t *testing.T) {
	busy := scheduling.ConflictResult{HasConflict: true, Conflicts: []scheduling.ConflictDescriptor{
		{Kind: scheduling.OwnerTeacher}, {Kind: scheduling.OwnerRoom}, {Kind: scheduling.OwnerRoom},
	}}
	legacyBusy := scheduling.ConflictResult{HasConflict: true, Conflicts: []scheduling.ConflictDescriptor{
		{Kind: scheduling.OwnerRoom}, {Kind: scheduling.OwnerTeacher},
	}}

	comp := compareTarget(context.Background(), fixedChecker(busy, nil), fixedChecker(legacyBusy, nil), sample, time.Second)

	require.NoError(t, comp.Error)
	assert.True(t, comp.VerdictMatch)
	assert.True(t, comp.KindsMatch)
	assert.Equal(t, []string{"ROOM", "TEACHER"}, comp.LocalKinds)
}

func TestCompareTargetDiffAndErrors(t *testing.T) {
	free := scheduling.ConflictResult{}
	busy := scheduling.ConflictResult{HasConflict: true, Conflicts: []scheduling.ConflictDescriptor{{Kind: scheduling.OwnerRoom}}}

	comp := compareTarget(context.Background(), fixedChecker(free, nil), fixedChecker(busy, nil), sample, time.Second)
	require.NoError(t, comp.Error)
	assert.False(t, comp.VerdictMatch)

	comp = compareTarget(context.Background(), fixedChecker(free, nil), fixedChecker(free, errors.New("502")), sample, time.Second)
	assert.ErrorContains(t, comp.Error, "legacy check failed")

	bad := sample
	bad.EndTime = "07:00"
	comp = compareTarget(context.Background(), fixedChecker(free, nil), fixedChecker(free, nil), bad, time.Second)
	assert.Error(t, comp.Error)
}

func TestLoadTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"targets":[{"lesson_id":"l1","critical":true}]}`), 0o600))

	targets, err := loadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.True(t, targets[0].Critical)

	require.NoError(t, os.WriteFile(path, []byte(`{"targets":[]}`), 0o600))
	_, err = loadTargets(path)
	assert.Error(t, err)
}
