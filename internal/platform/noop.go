package platform

import "context"

// NoopClient stands in when no platform gateway is configured. Side
// effects degrade to no-ops so local development and tests can run
// without a live gateway; invite links carry a recognizable fake URL.
type NoopClient struct{}

func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

func (NoopClient) SendMessage(ctx context.Context, target, text string) error {
	return nil
}

func (NoopClient) RemoveMember(ctx context.Context, groupID, memberExternalID string) error {
	return nil
}

func (NoopClient) CreateInviteLink(ctx context.Context, groupID string, params InviteLinkParams) (string, error) {
	return "noop://invite/" + groupID, nil
}

func (NoopClient) RevokeInviteLink(ctx context.Context, url string) error {
	return nil
}

func (NoopClient) ListAdmins(ctx context.Context, groupID string) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}
