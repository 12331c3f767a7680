package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/admin"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/config"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/database"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/logging"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/mail"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/notify"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/outbox"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/seed"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/universities"
)

// env is what every command needs. It is built lazily so --help works
// without a database.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *gorm.DB
}

func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log.Level, "console")
	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func (e *env) close() {
	database.Close(e.db)
}

// withEnv wraps a command action with setup and teardown.
func withEnv(action func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()
		return action(c, e)
	}
}

// dispatcher returns a notify.Dispatcher and a flush function. With Redis
// configured, emails go to the shared outbox for the server's worker;
// otherwise they are delivered before the command exits.
func (e *env) dispatcher(ctx context.Context) (*notify.Dispatcher, func(), error) {
	if e.cfg.Redis.URL != "" {
		client, err := outbox.NewRedisClient(e.cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		q := outbox.NewRedisQueue(client, e.cfg.Redis.QueueKey)
		return notify.NewDispatcher(e.db, q, e.cfg.BaseURL, e.logger), func() { client.Close() }, nil
	}

	sender, err := mail.NewSender(e.cfg.SMTP, e.logger)
	if err != nil {
		return nil, nil, err
	}
	q := outbox.NewMemoryQueue(10000)
	worker := outbox.NewWorker(q, sender, e.logger)
	flush := func() {
		for q.Len() > 0 {
			job, err := q.Dequeue(ctx)
			if err != nil {
				return
			}
			worker.Process(ctx, job)
		}
	}
	return notify.NewDispatcher(e.db, q, e.cfg.BaseURL, e.logger), flush, nil
}

func main() {
	app := &cli.App{
		Name:  "uniresolve-admin",
		Usage: "Operator tasks for a uniresolve deployment",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Create or update the database schema",
				Action: withEnv(func(c *cli.Context, e *env) error {
					e.logger.Info().Str("driver", e.cfg.DB.Driver).Msg("database migrations completed")
					return nil
				}),
			},
			{
				Name:  "seed",
				Usage: "Create the demo university and accounts when the database is empty",
				Action: withEnv(func(c *cli.Context, e *env) error {
					created, err := seed.Demo(c.Context, e.db, e.logger)
					if err != nil {
						return err
					}
					if !created {
						fmt.Println("Database already has universities, nothing seeded")
					}
					return nil
				}),
			},
			{
				Name:  "sweep-overdue",
				Usage: "Alert assignees about overdue complaints",
				Action: withEnv(func(c *cli.Context, e *env) error {
					d, flush, err := e.dispatcher(c.Context)
					if err != nil {
						return err
					}
					defer flush()
					result, err := d.SweepOverdue(c.Context, time.Now())
					if err != nil {
						return err
					}
					fmt.Printf("overdue=%d notifications=%d skipped=%d\n", result.Overdue, result.Notifications, result.Skipped)
					return nil
				}),
			},
			{
				Name:  "send-digests",
				Usage: "Send the daily digest to every active user",
				Action: withEnv(func(c *cli.Context, e *env) error {
					d, flush, err := e.dispatcher(c.Context)
					if err != nil {
						return err
					}
					defer flush()
					sent, err := d.SendDigests(c.Context, time.Now())
					if err != nil {
						return err
					}
					fmt.Printf("digests=%d\n", sent)
					return nil
				}),
			},
			{
				Name:  "create-university",
				Usage: "Register a university",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "code", Required: true, Usage: "short identifier, e.g. DEMO"},
					&cli.StringFlag{Name: "domain", Required: true, Usage: "email domain, e.g. demo.edu"},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "timezone", Value: "UTC"},
				},
				Action: withEnv(func(c *cli.Context, e *env) error {
					u, err := universities.NewService(e.db).Create(c.Context, universities.CreateInput{
						Name:     c.String("name"),
						Code:     c.String("code"),
						Domain:   c.String("domain"),
						Email:    c.String("email"),
						Timezone: c.String("timezone"),
					})
					if err != nil {
						return err
					}
					fmt.Printf("Created university %s (ID: %d)\n", u.Code, u.ID)
					return nil
				}),
			},
			{
				Name:  "create-user",
				Usage: "Create an account with any role",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"UNIRESOLVE_PASSWORD"}},
					&cli.StringFlag{Name: "role", Value: string(models.RoleAdmin), Usage: "student, staff, admin or super_admin"},
					&cli.StringFlag{Name: "university", Required: true, Usage: "university code"},
				},
				Action: withEnv(func(c *cli.Context, e *env) error {
					var uni models.University
					if err := e.db.WithContext(c.Context).Where("code = ?", strings.ToUpper(c.String("university"))).First(&uni).Error; err != nil {
						return fmt.Errorf("university %q: %w", c.String("university"), err)
					}
					user, err := admin.NewService(e.db).CreateUser(c.Context, nil, admin.CreateUserInput{
						Email:        c.String("email"),
						Username:     c.String("username"),
						FullName:     c.String("name"),
						Password:     c.String("password"),
						Role:         models.Role(c.String("role")),
						UniversityID: uni.ID,
					})
					if err != nil {
						return err
					}
					fmt.Printf("Created %s %s (ID: %d)\n", user.Role, user.Email, user.ID)
					return nil
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
