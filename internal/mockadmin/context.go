package mockadmin

import "context"

func withSubject(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, subjectKey, identityID)
}

func subjectFrom(ctx context.Context) string {
	v, _ := ctx.Value(subjectKey).(string)
	return v
}
