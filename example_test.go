package sessionguard_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/sessionguard"
)

// ExampleNew shows engine construction against a shared Redis.
func ExampleNew() {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"127.0.0.1:6379"}})

	cfg := sessionguard.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("replace-me")

	engine, err := sessionguard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountProvider(exampleAccounts{}).
		Build()
	if err != nil {
		return
	}
	defer engine.Close()
}

// ExampleEngine_Login shows the two login outcomes.
func ExampleEngine_Login() {
	var engine *sessionguard.Engine
	res, err := engine.Login(context.Background(), "alice@example.com", "password")
	switch {
	case errors.Is(err, sessionguard.ErrInvalidCredentials):
		fmt.Println("bad credentials")
	case err != nil:
		fmt.Println("try again later")
	case res.MFARequired:
		fmt.Println("challenge:", res.ChallengeToken)
	default:
		fmt.Println("access:", res.Tokens.AccessToken)
	}
}

// ExampleEngine_MetricsSnapshot shows reading in-process counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *sessionguard.Engine
	snapshot := engine.MetricsSnapshot()
	fmt.Println(snapshot.Counters[sessionguard.MetricLoginSuccess])
}

type exampleAccounts struct{}

func (exampleAccounts) FindPrincipalByIdentifier(context.Context, string) (sessionguard.Principal, error) {
	return sessionguard.Principal{}, sessionguard.ErrPrincipalNotFound
}

func (exampleAccounts) FindPrincipalByID(context.Context, string) (sessionguard.Principal, error) {
	return sessionguard.Principal{}, sessionguard.ErrPrincipalNotFound
}

func (exampleAccounts) VerifyPassword(context.Context, sessionguard.Principal, string) (bool, error) {
	return false, nil
}
