package interceptors

import (
	"context"
	"fmt"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"course-admin/backend/internal/session/domain"
	"course-admin/backend/internal/session/service"
)

// fakeAuthenticator returns a canned result and records what it was asked.
type fakeAuthenticator struct {
	res    *service.ValidationResult
	err    error
	token  string
	ip, ua string
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, token, ip, ua string) (*service.ValidationResult, error) {
	f.token, f.ip, f.ua = token, ip, ua
	return f.res, f.err
}

func validResult() *service.ValidationResult {
	org := "org-1"
	return &service.ValidationResult{
		Valid: true,
		Session: &domain.Session{
			ID:             "session-1",
			UserID:         "user-1",
			Username:       "ana",
			Role:           "instructor",
			OrganizationID: &org,
		},
	}
}

func bearerCtx(token string, kv ...string) context.Context {
	md := metadata.Pairs(append([]string{"authorization", "Bearer " + token}, kv...)...)
	return metadata.NewIncomingContext(context.Background(), md)
}

const protected = "/test.Service/ProtectedMethod"

func TestAuthUnary_PublicMethod_NoToken(t *testing.T) {
	auth := &fakeAuthenticator{}
	interceptor := AuthUnary(auth, map[string]bool{"/test.Service/PublicMethod": true})

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/PublicMethod"}, okHandler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "success" {
		t.Errorf("response = %v, want %q", resp, "success")
	}
	if auth.token != "" {
		t.Error("Authenticate called without a token")
	}
}

func TestAuthUnary_ProtectedMethod_NoToken(t *testing.T) {
	interceptor := AuthUnary(&fakeAuthenticator{}, nil)
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: protected}, okHandler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestAuthUnary_ValidSession_SetsIdentity(t *testing.T) {
	auth := &fakeAuthenticator{res: validResult()}
	interceptor := AuthUnary(auth, nil)
	ctx := WithClientIP(bearerCtx("tok", "x-user-agent", "Mozilla/5.0"), "203.0.113.5")

	var got context.Context
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: protected}, func(ctx context.Context, _ interface{}) (interface{}, error) {
		got = ctx
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if auth.token != "tok" || auth.ip != "203.0.113.5" || auth.ua != "Mozilla/5.0" {
		t.Errorf("Authenticate(%q, %q, %q)", auth.token, auth.ip, auth.ua)
	}
	if v, _ := GetSessionID(got); v != "session-1" {
		t.Errorf("session_id = %q", v)
	}
	if v, _ := GetOrgID(got); v != "org-1" {
		t.Errorf("org_id = %q", v)
	}
	if v, _ := GetRole(got); v != "instructor" {
		t.Errorf("role = %q", v)
	}
	if IsDegraded(got) {
		t.Error("context marked degraded")
	}
}

func TestAuthUnary_DegradedSession(t *testing.T) {
	res := validResult()
	res.Degraded = true
	interceptor := AuthUnary(&fakeAuthenticator{res: res}, nil)

	var degraded bool
	_, err := interceptor(bearerCtx("tok"), nil, &grpc.UnaryServerInfo{FullMethod: protected}, func(ctx context.Context, _ interface{}) (interface{}, error) {
		degraded = IsDegraded(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if !degraded {
		t.Error("context not marked degraded")
	}
}

func TestAuthUnary_RejectedSession(t *testing.T) {
	auth := &fakeAuthenticator{res: &service.ValidationResult{Reason: service.ReasonIPMismatch}}
	interceptor := AuthUnary(auth, nil)

	_, err := interceptor(bearerCtx("tok"), nil, &grpc.UnaryServerInfo{FullMethod: protected}, okHandler)
	st := status.Convert(err)
	if st.Code() != codes.Unauthenticated {
		t.Fatalf("code = %v, want Unauthenticated", st.Code())
	}
	if want := "session rejected: ip_mismatch"; st.Message() != want {
		t.Errorf("message = %q, want %q", st.Message(), want)
	}
}

func TestAuthUnary_RejectedSession_PublicMethodProceeds(t *testing.T) {
	auth := &fakeAuthenticator{res: &service.ValidationResult{Reason: service.ReasonNotFoundOrExpired}}
	interceptor := AuthUnary(auth, map[string]bool{protected: true})

	var userSet bool
	_, err := interceptor(bearerCtx("tok"), nil, &grpc.UnaryServerInfo{FullMethod: protected}, func(ctx context.Context, _ interface{}) (interface{}, error) {
		_, userSet = GetUserID(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if userSet {
		t.Error("identity set for rejected token")
	}
}

func TestAuthUnary_StoreUnavailable(t *testing.T) {
	auth := &fakeAuthenticator{err: fmt.Errorf("%w: redis down", service.ErrUnavailable)}
	interceptor := AuthUnary(auth, nil)

	_, err := interceptor(bearerCtx("tok"), nil, &grpc.UnaryServerInfo{FullMethod: protected}, okHandler)
	if status.Code(err) != codes.Unavailable {
		t.Errorf("code = %v, want Unavailable", status.Code(err))
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name, header, want string
	}{
		{"valid", "Bearer abc", "abc"},
		{"case insensitive", "bEaReR abc", "abc"},
		{"wrong scheme", "Basic abc", ""},
		{"whitespace", "  Bearer   abc  ", "abc"},
		{"too short", "Bear", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", tt.header))
			if got := extractBearer(ctx); got != tt.want {
				t.Errorf("extractBearer = %q, want %q", got, tt.want)
			}
		})
	}
	if got := extractBearer(context.Background()); got != "" {
		t.Errorf("extractBearer without metadata = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		"user-agent", "grpc-go/1.78.0",
		"x-user-agent", "Mozilla/5.0",
	))
	if got := UserAgent(ctx); got != "Mozilla/5.0" {
		t.Errorf("UserAgent = %q, want x-user-agent value", got)
	}
	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("user-agent", "curl/8.0"))
	if got := UserAgent(ctx); got != "curl/8.0" {
		t.Errorf("UserAgent = %q", got)
	}
	if got := UserAgent(context.Background()); got != "" {
		t.Errorf("UserAgent without metadata = %q", got)
	}
}

func TestAuthUnary_BindsToPeerUnlessProxyTrusted(t *testing.T) {
	tests := []struct {
		name   string
		peerIP string
		want   string
	}{
		{"direct caller spoofing header", "198.51.100.20", "198.51.100.20"},
		{"trusted load balancer", "10.0.0.7", "203.0.113.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuthenticator{res: validResult()}
			md := metadata.Pairs("authorization", "Bearer tok", "x-forwarded-for", "203.0.113.5")
			ctx := metadata.NewIncomingContext(fromPeer(tt.peerIP, nil), md)
			ip := ClientIPUnary(NewIPResolver(lbPrefixes))
			authn := AuthUnary(auth, nil)
			info := &grpc.UnaryServerInfo{FullMethod: protected}
			_, err := ip(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return authn(ctx, req, info, okHandler)
			})
			if err != nil {
				t.Fatalf("interceptor: %v", err)
			}
			if auth.ip != tt.want {
				t.Errorf("Authenticate ip = %q, want %q", auth.ip, tt.want)
			}
		})
	}
}
