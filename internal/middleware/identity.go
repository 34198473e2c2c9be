package middleware

import "context"

var requestIdentityKey = contextKey("request_identity")

// requestIdentity は認証ミドルウェアが判明した呼び出し元をロギングへ伝える。
type requestIdentity struct {
	userID     string
	externalID string
}

func withRequestIdentity(ctx context.Context, id *requestIdentity) context.Context {
	return context.WithValue(ctx, requestIdentityKey, id)
}

func noteUserID(ctx context.Context, userID string) {
	if id, ok := ctx.Value(requestIdentityKey).(*requestIdentity); ok {
		id.userID = userID
	}
}

func noteExternalID(ctx context.Context, externalID string) {
	if id, ok := ctx.Value(requestIdentityKey).(*requestIdentity); ok {
		id.externalID = externalID
	}
}
