package worker

import "syscall"

// lowPriorityNice is the niceness a low-priority worker runs at.
const lowPriorityNice = 10

// lowerPriority demotes the current process.
func lowerPriority() error {
	return syscall.Setpriority(syscall.PRIO_PROCESS, 0, lowPriorityNice)
}
