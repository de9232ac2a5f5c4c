// Package api provides the gRPC scoring service.
//
// Messages are google.protobuf.Struct values so document trees of any shape
// pass through unchanged; the service descriptor is registered by hand in
// desc.go.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/medaudit/internal/types"
)

// Scorer is the scoring core the service delegates to.
type Scorer interface {
	Score(ctx context.Context, doc types.Document) (*types.ScoringResult, error)
	Recalculate(ctx context.Context, doc types.Document, previousScore int) (*types.ScoringResult, error)
	Staleness(ctx context.Context, versionID types.VersionID) (*types.VersionCheck, error)
}

// ScoringService implements ScoringServer.
// Thin orchestration layer: decode the Struct, call the scorer, encode.
type ScoringService struct {
	scorer Scorer
}

// NewScoringService creates the service.
func NewScoringService(scorer Scorer) (*ScoringService, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer cannot be nil")
	}
	return &ScoringService{scorer: scorer}, nil
}

// Score scores {"provider": string?, "document": object}.
func (s *ScoringService) Score(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := documentFrom(req)
	if err != nil {
		return nil, err
	}
	result, err := s.scorer.Score(ctx, doc)
	if err != nil {
		return nil, err
	}
	return toStruct(result)
}

// Recalculate scores {"provider", "document", "previousScore": number}.
func (s *ScoringService) Recalculate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := documentFrom(req)
	if err != nil {
		return nil, err
	}

	prev, ok := req.GetFields()["previousScore"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "previousScore is required")
	}
	n, ok := prev.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return nil, status.Error(codes.InvalidArgument, "previousScore must be an integer")
	}
	if n.NumberValue < 0 || n.NumberValue > types.BaseScore {
		return nil, status.Errorf(codes.InvalidArgument, "previousScore must be between 0 and %d", types.BaseScore)
	}

	result, err := s.scorer.Recalculate(ctx, doc, int(n.NumberValue))
	if err != nil {
		return nil, err
	}
	return toStruct(result)
}

// CheckRuleVersion reports staleness for {"versionId": string}.
func (s *ScoringService) CheckRuleVersion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := req.GetFields()["versionId"].GetStringValue()
	id, err := types.ParseVersionID(raw)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid versionId %q", raw)
	}

	check, err := s.scorer.Staleness(ctx, id)
	if err != nil {
		return nil, err
	}
	return toStruct(check)
}

// documentFrom builds a Document from a request. The explicit provider
// field wins over the tree's own "provider" key.
func documentFrom(req *structpb.Struct) (types.Document, error) {
	fields := req.GetFields()
	docValue, ok := fields["document"]
	if !ok {
		return types.Document{}, status.Error(codes.InvalidArgument, "document is required")
	}
	tree := docValue.GetStructValue()
	if tree == nil {
		return types.Document{}, status.Error(codes.InvalidArgument, "document must be an object")
	}
	return types.NewDocument(tree.AsMap(), fields["provider"].GetStringValue()), nil
}

// toStruct converts a response type through its JSON encoding, so field
// names match the admin API.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}
