package domain

import "fmt"

const (
	ExecutionPrefix  = "routine:execution:"
	NodeResultPrefix = "routine:result:"
)

// ExecutionKey builds the canonical key for an execution record.
func ExecutionKey(workflowID string) string {
	return fmt.Sprintf("%s%s", ExecutionPrefix, workflowID)
}

// NodeResultPrefixFor scopes every node result stored for one execution.
func NodeResultPrefixFor(workflowID string) string {
	return fmt.Sprintf("%s%s:", NodeResultPrefix, workflowID)
}

// NodeResultKey orders results by node id, then run index.
func NodeResultKey(workflowID, nodeID string, runIndex int) string {
	return fmt.Sprintf("%s%s:%010d", NodeResultPrefixFor(workflowID), nodeID, runIndex)
}
