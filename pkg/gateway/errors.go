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

package gateway

import "fmt"

func errNotFoundDB(id uint32) *Response {
	return failure(ErrKindNotFound, fmt.Sprintf("no db with id %d", id))
}

func errNotFoundStmt(id uint32) *Response {
	return failure(ErrKindNotFound, fmt.Sprintf("no stmt with id %d", id))
}

func errBusyOpen() *Response {
	return failure(ErrKindBusy, "a database for this connection is already open")
}

func errUnknownOpcode(t Opcode) *Response {
	return failure(ErrKindError, fmt.Sprintf("invalid request type %d", int(t)))
}

// errNoLeader preserves the source's documented, bit-exact behavior of
// folding "no leader known" into NOMEM rather than a more informative
// UNAVAILABLE/NOTFOUND code. See DESIGN.md for the rationale to keep it.
func errNoLeader() *Response {
	return failure(ErrKindNoMem, "failed to get cluster leader")
}
