/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package sandbox

import (
	"runtime"
	"sync"
	"time"
)

// memorySampleInterval is how often the heap is sampled during a run.
const memorySampleInterval = 10 * time.Millisecond

// watchMemory calls onBreach once when the process heap grows more than limit bytes above its
// size at the start of the watch. Heap usage is process wide, so the ceiling is best effort when
// several scripts run at once. The returned function stops the watchdog and waits for it to exit.
func watchMemory(limit uint64, onBreach func()) func() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	baseline := stats.HeapAlloc

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(memorySampleInterval)
		defer ticker.Stop()
		var sample runtime.MemStats
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				runtime.ReadMemStats(&sample)
				if sample.HeapAlloc > baseline && sample.HeapAlloc-baseline > limit {
					onBreach()
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
	}
}
