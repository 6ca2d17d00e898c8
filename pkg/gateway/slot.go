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

import "github.com/pingcap/tidb-lite/pkg/metrics"

// numSlots is the size of the gateway's request/response slot array.
// Slot 0 is data-plane, slot 1 is control-plane; see Opcode.Slot.
const numSlots = 2

// slot is one pre-allocated request/response context. Its request field
// is non-nil exactly while a request is in flight on this slot; cursor is
// non-nil only while a streaming query is suspended between batches.
type slot struct {
	request  *Request
	cursor   Statement
	cursorDB uint32
	response Response
}

func (s *slot) busy() bool {
	return s.request != nil
}

func (s *slot) free() {
	s.request = nil
	s.setCursor(nil)
}

// setCursor installs stmt as the slot's suspended query cursor, keeping
// the active-cursor gauge in step with the nil/non-nil transition.
func (s *slot) setCursor(stmt Statement) {
	if metrics.GatewayActiveCursors != nil {
		if s.cursor == nil && stmt != nil {
			metrics.GatewayActiveCursors.Inc()
		} else if s.cursor != nil && stmt == nil {
			metrics.GatewayActiveCursors.Dec()
		}
	}
	s.cursor = stmt
}
