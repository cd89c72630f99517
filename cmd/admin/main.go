package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"chatline/backend/internal/chathub"
	"chatline/backend/internal/config"
	"chatline/backend/internal/logger"
	"chatline/backend/internal/storage"

	"github.com/redis/go-redis/v9"
)

const usage = `Usage: admin <command> [args]

Commands:
  online                 list users the presence mirror reports as connected
  last-seen <user_id>    show when a user was last connected
  clear <user_a> <user_b> delete every message between two users`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{Level: "warn"})
	log := logger.L()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close(context.Background())

	switch command := os.Args[1]; command {
	case "online":
		mirror, closeRedis := openMirror(cfg.Redis)
		defer closeRedis()
		if err := listOnline(ctx, mirror, store); err != nil {
			log.Fatal().Err(err).Msg("online")
		}
	case "last-seen":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin last-seen <user_id>")
			os.Exit(1)
		}
		mirror, closeRedis := openMirror(cfg.Redis)
		defer closeRedis()
		if err := lastSeen(ctx, mirror, store, os.Args[2]); err != nil {
			log.Fatal().Err(err).Msg("last-seen")
		}
	case "clear":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin clear <user_a> <user_b>")
			os.Exit(1)
		}
		n, err := store.DeleteConversation(ctx, os.Args[2], os.Args[3])
		if err != nil {
			log.Fatal().Err(err).Msg("clear")
		}
		fmt.Printf("Deleted %d messages between %s and %s.\n", n, os.Args[2], os.Args[3])
	default:
		fmt.Printf("Unknown command %q\n\n%s\n", command, usage)
		os.Exit(1)
	}
}

// openMirror returns nil when no Redis is configured.
func openMirror(cfg config.RedisConfig) (*chathub.RedisMirror, func()) {
	if cfg.Address == "" {
		return nil, func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB})
	return chathub.NewRedisMirror(rdb, cfg.Prefix), func() { _ = rdb.Close() }
}

func listOnline(ctx context.Context, mirror *chathub.RedisMirror, store storage.UserStore) error {
	if mirror == nil {
		return errors.New("presence is only visible through redis; set REDIS_ADDRESS")
	}
	ids, err := mirror.OnlineUsers(ctx)
	if err != nil {
		return err
	}
	users, err := store.ListUsersByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("Nobody is online.")
		return nil
	}
	for _, u := range users {
		fmt.Printf("%s\t%s\t%s\n", u.ID, u.Email, u.FullName)
	}
	return nil
}

// lastSeen prefers the mirror, which is stamped on every disconnect, and
// falls back to the stored user record.
func lastSeen(ctx context.Context, mirror *chathub.RedisMirror, store storage.UserStore, userID string) error {
	if mirror != nil {
		at, found, err := mirror.LastSeen(ctx, userID)
		if err != nil {
			return err
		}
		if found {
			fmt.Printf("%s last seen %s (presence mirror)\n", userID, at.Format(time.RFC3339))
			return nil
		}
	}
	u, err := store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Printf("%s last seen %s\n", userID, u.LastSeen.Format(time.RFC3339))
	return nil
}
