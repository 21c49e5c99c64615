package deviceshell

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeShell accepts one connection and echoes a canned response per
// request type, enough to exercise the client without a real ADB
// bridge.
func fakeShell(t *testing.T, respond func(Request) Response) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}
			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				return
			}
			resp := respond(req)
			resp.ID = req.ID
			data, _ := json.Marshal(resp)
			data = append(data, '\n')
			conn.Write(data)
		}
	}()

	return ln.Addr().String()
}

func TestPingSucceeds(t *testing.T) {
	addr := fakeShell(t, func(Request) Response { return Response{Success: true} })
	c, err := Dial("tcp", addr, time.Second)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Ping())
}

func TestIsFreeFireRunningParsesResult(t *testing.T) {
	addr := fakeShell(t, func(req Request) Response {
		require.Equal(t, "IsFreeFireRunning", req.Type)
		return Response{Success: true, Results: []string{"true"}}
	})
	c, err := Dial("tcp", addr, time.Second)
	require.NoError(t, err)
	defer c.Close()

	running, err := c.IsFreeFireRunning("emulator-5554")
	require.NoError(t, err)
	require.True(t, running)
}

func TestExecuteBatchReturnsResultsAndDuration(t *testing.T) {
	addr := fakeShell(t, func(req Request) Response {
		require.Equal(t, "ExecuteBatch", req.Type)
		require.Len(t, req.Commands, 2)
		return Response{Success: true, Results: []string{"ok1", "ok2"}, TotalTimeMs: 42}
	})
	c, err := Dial("tcp", addr, time.Second)
	require.NoError(t, err)
	defer c.Close()

	results, dur, err := c.ExecuteBatch("emulator-5554", []string{"cmd1", "cmd2"})
	require.NoError(t, err)
	require.Equal(t, []string{"ok1", "ok2"}, results)
	require.Equal(t, 42*time.Millisecond, dur)
}

func TestCallReturnsErrRequestFailedOnFailure(t *testing.T) {
	addr := fakeShell(t, func(Request) Response { return Response{Success: false, Error: "device offline"} })
	c, err := Dial("tcp", addr, time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Execute("emulator-5554", "ls")
	require.Error(t, err)
	var failErr *ErrRequestFailed
	require.ErrorAs(t, err, &failErr)
	require.Equal(t, "device offline", failErr.Response.Error)
}

func TestSplitBatchOutputHandlesMultipleParts(t *testing.T) {
	combined := "first" + batchSeparator + "second" + batchSeparator + "third"
	parts := SplitBatchOutput(combined)
	require.Equal(t, []string{"first", "second", "third"}, parts)
}

func TestSplitBatchOutputHandlesNoSeparator(t *testing.T) {
	parts := SplitBatchOutput("onlyone")
	require.Equal(t, []string{"onlyone"}, parts)
}
