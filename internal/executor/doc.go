// Package executor runs task bodies in the background.
//
// Callers create and queue a task, then Submit a Job naming the registered
// body and the task id. Submission is fire-and-forget: the body reports its
// own progress and outcome through a lifecycle.Handle. Two backends exist: an
// in-process goroutine Pool and an asynq client/worker pair backed by Redis.
// Neither retries a job; a failed body leaves a failed task behind.
package executor
