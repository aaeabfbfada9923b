package storage

import (
	"github.com/goccy/go-json"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

func encodeSummary(summary *ports.ExecutionSummary) ([]byte, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, domain.NewStorageError("failed to encode execution", err,
			domain.WithDetail("workflow_id", summary.WorkflowID))
	}
	return data, nil
}

func decodeSummary(data []byte) (*ports.ExecutionSummary, error) {
	var summary ports.ExecutionSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, domain.NewStorageError("failed to decode execution", err)
	}
	return &summary, nil
}

func encodeResult(record ports.NodeResultRecord) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, domain.NewStorageError("failed to encode node result", err,
			domain.WithDetail("workflow_id", record.WorkflowID),
			domain.WithDetail("node_id", record.NodeID))
	}
	return data, nil
}

func decodeResult(data []byte) (ports.NodeResultRecord, error) {
	var record ports.NodeResultRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return record, domain.NewStorageError("failed to decode node result", err)
	}
	return record, nil
}
