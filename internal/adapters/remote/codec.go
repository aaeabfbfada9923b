package remote

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
	"github.com/eleven-am/routines/internal/xjson"
)

// Requests and results cross the wire as structpb.Struct built from their
// JSON form. Numbers therefore arrive as float64 on the other side.

func encodeRequest(req ports.PluginRequest) (*structpb.Struct, error) {
	return toStruct(req)
}

func decodeRequest(msg *structpb.Struct) (ports.PluginRequest, error) {
	var req ports.PluginRequest
	err := fromStruct(msg, &req)
	return req, err
}

func encodeResult(result *domain.PluginResult) (*structpb.Struct, error) {
	if result == nil {
		result = &domain.PluginResult{}
	}
	if result.Data == nil {
		result = &domain.PluginResult{Signal: result.Signal, Data: domain.PortData{}}
	}
	return toStruct(result)
}

func decodeResult(msg *structpb.Struct) (*domain.PluginResult, error) {
	var result domain.PluginResult
	if err := fromStruct(msg, &result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		result.Data = domain.PortData{}
	}
	return &result, nil
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	generic, err := xjson.Normalize(v)
	if err != nil {
		return nil, domain.NewNetworkError("encode remote message", err)
	}
	msg, err := structpb.NewStruct(generic)
	if err != nil {
		return nil, domain.NewNetworkError("encode remote message", err)
	}
	return msg, nil
}

func fromStruct(msg *structpb.Struct, target interface{}) error {
	data, err := xjson.Marshal(msg.AsMap())
	if err != nil {
		return domain.NewNetworkError("decode remote message", err)
	}
	if err := xjson.Unmarshal(data, target); err != nil {
		return domain.NewNetworkError("decode remote message", err)
	}
	return nil
}
