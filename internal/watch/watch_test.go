package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/pkgchain/internal/session"
)

// deadPID returns a pid guaranteed to refer to no live process.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())
	return cmd.Process.Pid
}

func seedSession(t *testing.T, store *session.Store, name string, pids ...int) {
	t.Helper()
	ctx := context.Background()
	_, err := store.Create(ctx, name)
	require.NoError(t, err)
	for _, pid := range pids {
		require.NoError(t, store.AddProcess(ctx, name, session.ProcessRecord{
			PID:       pid,
			Command:   "sleep 30",
			StartTime: time.Now(),
			Status:    session.StatusRunning,
		}))
	}
}

func TestAlive(t *testing.T) {
	assert.True(t, Alive(os.Getpid()), "our own pid is alive")
	assert.False(t, Alive(deadPID(t)), "a waited-on child is gone")
}

func TestBuildReport(t *testing.T) {
	now := time.Now()
	sess := &session.Session{
		ConfigName:  "demo",
		SessionID:   "123",
		StartedAt:   now,
		LastUpdated: now,
		Processes: []session.ProcessRecord{
			{PID: os.Getpid(), Status: session.StatusRunning},
			{PID: deadPID(t), Status: session.StatusRunning},
		},
	}

	report := BuildReport(sess)
	require.Len(t, report.Processes, 2)
	assert.Equal(t, 1, report.LiveCount)
	assert.Equal(t, session.StatusRunning, report.Processes[0].ActualStatus)
	assert.Equal(t, session.StatusStopped, report.Processes[1].ActualStatus)
	assert.Empty(t, report.EndedAt, "open session has no end time")
}

func TestShowJSON(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(t.TempDir())
	seedSession(t, store, "demo", deadPID(t))

	var out bytes.Buffer
	w := New(store, &out, strings.NewReader(""))
	require.NoError(t, w.Show(ctx, "demo", true))

	var report Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "demo", report.ConfigName)
	require.Len(t, report.Processes, 1)
	assert.Equal(t, session.StatusStopped, report.Processes[0].ActualStatus)
	assert.Equal(t, 0, report.LiveCount)
}

func TestShowTableMarksOrphans(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(t.TempDir())
	seedSession(t, store, "demo", os.Getpid())

	var out bytes.Buffer
	w := New(store, &out, strings.NewReader(""))
	require.NoError(t, w.Show(ctx, "demo", false))
	assert.Contains(t, out.String(), "(orphan)")
	assert.Contains(t, out.String(), "live: 1 of 1")
}

func TestShowMissingSession(t *testing.T) {
	ctx := context.Background()
	w := New(session.NewStore(t.TempDir()), &bytes.Buffer{}, strings.NewReader(""))
	assert.ErrorIs(t, w.Show(ctx, "nope", false), ErrNoSession)
}

func TestShowAllEmpty(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	w := New(session.NewStore(t.TempDir()), &out, strings.NewReader(""))
	require.NoError(t, w.ShowAll(ctx, false))
	assert.Contains(t, out.String(), "no sessions recorded")
}

func TestFollowStopsOnCancel(t *testing.T) {
	store := session.NewStore(t.TempDir())
	seedSession(t, store, "demo")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	w := New(store, &out, strings.NewReader(""))
	start := time.Now()
	require.NoError(t, w.Follow(ctx, "demo", 100*time.Millisecond, false))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, out.String(), `session`)
}

func TestKillPID(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(t.TempDir())

	child := exec.Command("sleep", "30")
	require.NoError(t, child.Start())
	// Reap in the background so the killed child does not linger as a
	// zombie, which the liveness probe would still count as alive.
	reaped := make(chan struct{})
	go func() {
		child.Wait()
		close(reaped)
	}()
	t.Cleanup(func() { child.Process.Kill() })
	seedSession(t, store, "demo", child.Process.Pid)

	var out bytes.Buffer
	w := New(store, &out, strings.NewReader(""))
	require.NoError(t, w.KillPID(ctx, "demo", child.Process.Pid))
	assert.Contains(t, out.String(), "terminated")

	<-reaped
	assert.False(t, Alive(child.Process.Pid))
}

func TestKillPIDNotRecorded(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(t.TempDir())
	seedSession(t, store, "demo")

	w := New(store, &bytes.Buffer{}, strings.NewReader(""))
	assert.Error(t, w.KillPID(ctx, "demo", 999999))
}

func TestKillPIDAlreadyStopped(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(t.TempDir())
	pid := deadPID(t)
	seedSession(t, store, "demo", pid)

	var out bytes.Buffer
	w := New(store, &out, strings.NewReader(""))
	require.NoError(t, w.KillPID(ctx, "demo", pid))
	assert.Contains(t, out.String(), "not running")
}

func TestKillAll(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(t.TempDir())

	children := make([]*exec.Cmd, 2)
	pids := make([]int, 2)
	reaped := make(chan struct{}, 2)
	for i := range children {
		children[i] = exec.Command("sleep", "30")
		require.NoError(t, children[i].Start())
		pids[i] = children[i].Process.Pid
		go func(c *exec.Cmd) {
			c.Wait()
			reaped <- struct{}{}
		}(children[i])
	}
	t.Cleanup(func() {
		for _, c := range children {
			c.Process.Kill()
		}
	})
	seedSession(t, store, "demo", pids...)

	var out bytes.Buffer
	w := New(store, &out, strings.NewReader(""))
	require.NoError(t, w.KillAll(ctx, "demo"))
	assert.Contains(t, out.String(), "2 process(es) terminated")

	<-reaped
	<-reaped
	for _, pid := range pids {
		assert.False(t, Alive(pid))
	}
}

func TestCleanRefusesLiveProcesses(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(t.TempDir())
	seedSession(t, store, "demo", os.Getpid())

	w := New(store, &bytes.Buffer{}, strings.NewReader("y\n"))
	err := w.Clean(ctx, "demo", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live process(es)")

	sess, rerr := store.Read(ctx, "demo")
	require.NoError(t, rerr)
	assert.NotNil(t, sess, "session survives a refused clean")
}

func TestCleanConfirmed(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(t.TempDir())
	seedSession(t, store, "demo", deadPID(t))

	var out bytes.Buffer
	w := New(store, &out, strings.NewReader("y\n"))
	require.NoError(t, w.Clean(ctx, "demo", false))
	assert.Contains(t, out.String(), `session "demo" deleted`)

	sess, err := store.Read(ctx, "demo")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestCleanAborted(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(t.TempDir())
	seedSession(t, store, "demo", deadPID(t))

	var out bytes.Buffer
	w := New(store, &out, strings.NewReader("n\n"))
	require.NoError(t, w.Clean(ctx, "demo", false))
	assert.Contains(t, out.String(), "aborted")

	sess, err := store.Read(ctx, "demo")
	require.NoError(t, err)
	assert.NotNil(t, sess)
}

func TestCleanForcedWithLiveProcesses(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(t.TempDir())
	seedSession(t, store, "demo", os.Getpid())

	var out bytes.Buffer
	w := New(store, &out, strings.NewReader("y\n"))
	require.NoError(t, w.Clean(ctx, "demo", true))
	assert.Contains(t, out.String(), "STILL ALIVE")

	sess, err := store.Read(ctx, "demo")
	require.NoError(t, err)
	assert.Nil(t, sess)
}
