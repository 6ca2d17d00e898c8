// Copyright 2025 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gateway implements the per-connection request-dispatch state
// machine that fronts a replicated embedded SQL engine: it accepts decoded
// requests, drives an abstract local connection and its statements, and
// coordinates cluster-wide prerequisites through the Cluster capability set.
//
// The wire codec, the SQL engine itself, and the replication log are
// external collaborators; this package only depends on their contracts,
// expressed below as interfaces.
package gateway

import "context"

// Opcode identifies the kind of a decoded request.
type Opcode int

// Request opcodes, matching the wire protocol's opcode table.
const (
	OpLeader Opcode = iota
	OpClient
	OpHeartbeat
	OpOpen
	OpPrepare
	OpExec
	OpQuery
	OpFinalize
	OpExecSQL
	OpQuerySQL
	OpInterrupt
)

func (o Opcode) String() string {
	switch o {
	case OpLeader:
		return "LEADER"
	case OpClient:
		return "CLIENT"
	case OpHeartbeat:
		return "HEARTBEAT"
	case OpOpen:
		return "OPEN"
	case OpPrepare:
		return "PREPARE"
	case OpExec:
		return "EXEC"
	case OpQuery:
		return "QUERY"
	case OpFinalize:
		return "FINALIZE"
	case OpExecSQL:
		return "EXEC_SQL"
	case OpQuerySQL:
		return "QUERY_SQL"
	case OpInterrupt:
		return "INTERRUPT"
	default:
		return "UNKNOWN"
	}
}

// Slot returns the request/response slot this opcode targets.
// Slot 0 is data-plane; slot 1 is control-plane (heartbeat, interrupt).
func (o Opcode) Slot() int {
	switch o {
	case OpHeartbeat, OpInterrupt:
		return 1
	default:
		return 0
	}
}

// Error kinds surfaced to the client via FAILURE responses, and used
// internally to select the engine return code rendered on the wire.
const (
	ErrKindOK             = 0
	ErrKindError          = 1 // generic/unknown opcode
	ErrKindProtocol       = 2 // slot busy
	ErrKindNotFound       = 3
	ErrKindBusy           = 4
	ErrKindNoMem          = 5 // also used, bit-for-bit, for "no leader"
	ErrKindEngineFailure  = 6
	ErrKindBarrierFailure = 7
)

// Request is a decoded, opcode-tagged inbound message. Its payload fields
// are inline; the comments below name the opcodes that use each group.
type Request struct {
	Type      Opcode
	ClientID  uint32
	Timestamp int64

	// OPEN
	Name  string
	Flags uint32
	VFS   string

	// PREPARE / EXEC_SQL / QUERY_SQL
	SQL string

	// PREPARE / EXEC / QUERY / FINALIZE / EXEC_SQL / QUERY_SQL
	DBID   uint32
	StmtID uint32

	// EXEC / QUERY / EXEC_SQL / QUERY_SQL
	Params []Param
}

// Param is one bound statement parameter, in whatever representation the
// wire codec decoded it into. The gateway does not interpret it; it is
// handed verbatim to Statement.Bind.
type Param struct {
	Value any
}

// Cluster is the capability set the gateway consumes for cluster-wide
// coordination. Implementations must be safe for concurrent use across
// gateway instances (many gateways may share one Cluster).
type Cluster interface {
	// Leader returns the current leader's address, or ok=false if none
	// is currently known.
	Leader(ctx context.Context) (address string, ok bool)

	// Servers returns the current peer list. A non-nil error carries the
	// actual failure code and propagates as that same FAILURE response
	// verbatim, the same way every engine-facing method in this package
	// threads its EngineError code onto the wire.
	Servers(ctx context.Context) ([]Server, *EngineError)

	// Register is an opaque hook invoked when a new local DB handle is
	// opened, so the cluster layer can track connection-to-handle
	// ownership for recovery purposes.
	Register(ctx context.Context, localHandle uint64)

	// Barrier blocks until the replication log has applied all entries
	// committed as of the call. A non-nil error carries the actual
	// failure code and propagates as that same FAILURE response verbatim.
	Barrier(ctx context.Context) *EngineError

	// Checkpoint performs a cluster-coordinated WAL truncation for the
	// given local handle. Its error, if any, is logged but never
	// propagated to the client (per the wire protocol's documented
	// caveat).
	Checkpoint(ctx context.Context, localHandle uint64) error
}

// Server describes one cluster peer.
type Server struct {
	ID      uint64
	Address string
}

// Options is the immutable, already-parsed configuration a gateway
// consumes read-only for the lifetime of a connection.
type Options struct {
	HeartbeatTimeout    int64  `toml:"heartbeat-timeout"`    // milliseconds
	CheckpointThreshold uint32 `toml:"checkpoint-threshold"` // WAL pages
	PageSize            uint32 `toml:"page-size"`
	VFS                 string `toml:"vfs"`
	ReplicationPlugin   string `toml:"replication-plugin"`
}

// DefaultOptions returns conservative defaults matching the values used
// throughout this codebase's example configurations.
func DefaultOptions() Options {
	return Options{
		HeartbeatTimeout:    15000,
		CheckpointThreshold: 1000,
		PageSize:            4096,
		VFS:                 "dqlite",
		ReplicationPlugin:   "dqlite",
	}
}

// StepResult is the outcome of advancing a Statement's row iterator or
// running it to completion.
type StepResult int

const (
	StepRow StepResult = iota
	StepDone
	StepError
)

// Conn is a single local SQL connection with a replication-aware WAL. The
// gateway owns exactly one per connection, created by OPEN.
type Conn interface {
	// Prepare compiles the leading statement out of sql and returns it
	// together with the unconsumed tail (empty if sql held exactly one
	// statement). If sql contains no further executable statement (an
	// empty or whitespace/comment-only tail), Prepare returns a nil
	// Statement and a nil error.
	Prepare(ctx context.Context, sql string) (stmt Statement, tail string, err *EngineError)

	// LastError returns the most recent engine error text, for FAILURE
	// payloads that need to borrow it by reference.
	LastError() string

	// Close releases the connection and cascades to every live
	// statement. Idempotent.
	Close() error

	// InstallWALHook registers fn to be invoked by the engine after
	// every successful commit, with the post-commit WAL frame count.
	InstallWALHook(fn func(frameCount uint32))

	// WAL exposes the WAL introspection/locking surface needed by the
	// checkpoint hook (see checkpoint.go).
	WAL() WAL
}

// Statement is a prepared SQL object with bindable parameters and an
// incremental row iterator.
type Statement interface {
	// ParamCount returns the number of bind placeholders in the
	// compiled statement.
	ParamCount() int

	// Bind attaches parameter values for the next Exec/Step sequence.
	Bind(params []Param) *EngineError

	// Exec runs the statement to completion (for non-row-returning
	// statements) and reports the engine-assigned last-insert-id and
	// rows-affected count.
	Exec(ctx context.Context) (lastInsertID uint64, rowsAffected uint64, err *EngineError)

	// Step advances the row iterator by one row and appends its encoded
	// form to buf, returning the updated buffer. budget bounds how many
	// more bytes the caller is willing to accept in this batch; Step
	// may ignore it and let the caller decide when the batch is full.
	Step(ctx context.Context, buf []byte, budget int) (result StepResult, out []byte, err *EngineError)

	// Finalize destroys the statement. Idempotent.
	Finalize() error
}

// EngineError carries a lower-layer failure verbatim: an engine return
// code and a human-readable message, exactly as the wire protocol expects
// to render it in a FAILURE response.
type EngineError struct {
	Code    int
	Message string
}

func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// WAL is the introspection and locking surface the checkpoint hook needs
// over the connection's write-ahead log shared-memory header.
type WAL interface {
	// MxFrame returns the highest frame number committed to the WAL.
	MxFrame() uint32

	// ReaderMarks returns one entry per reader slot; index 0 is the
	// leading (writer) slot and is never checked by the checkpoint
	// policy, matching the engine's own passive-checkpoint rule.
	ReaderMarks() []uint32

	// TryLockExclusive attempts to take an exclusive lock on reader
	// slot i without blocking. ok is false if the lock is held
	// (BUSY) — an expected, non-error outcome.
	TryLockExclusive(i int) (ok bool, unlock func())
}
