// Package queue implements the durable at-least-once work queue that carries
// partitioned record batches from intake to the merge workers.
package queue
