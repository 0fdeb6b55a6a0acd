package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"SmartClaim/sdk/go/smartclaim"

	"github.com/urfave/cli/v2"
)

var serverFlag = &cli.StringFlag{
	Name:    "server",
	Usage:   "base URL of a running smartclaimd",
	Value:   "http://127.0.0.1:8080",
	EnvVars: []string{"SMARTCLAIM_SERVER"},
}

// clientCommands 通过 HTTP API 驱动一个正在运行的 smartclaimd。
func clientCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "wallet",
			Usage: "inspect or toggle the wallet session",
			Subcommands: []*cli.Command{
				{
					Name:  "status",
					Flags: []cli.Flag{serverFlag},
					Action: withClient(func(c *cli.Context, client *smartclaim.Client) (any, error) {
						return client.Wallet(c.Context)
					}),
				},
				{
					Name:  "toggle",
					Flags: []cli.Flag{
						serverFlag,
						&cli.BoolFlag{Name: "wait", Usage: "block until the contract is bound"},
					},
					Action: withClient(func(c *cli.Context, client *smartclaim.Client) (any, error) {
						return client.ToggleWallet(c.Context, c.Bool("wait"))
					}),
				},
			},
		},
		{
			Name:  "policy",
			Usage: "register a policy",
			Flags: []cli.Flag{
				serverFlag,
				&cli.StringFlag{Name: "holder", Required: true},
				&cli.StringFlag{Name: "payout", Required: true, Usage: "amount in ether"},
				&cli.StringFlag{Name: "condition", Required: true},
			},
			Action: withClient(func(c *cli.Context, client *smartclaim.Client) (any, error) {
				return client.RegisterPolicy(c.Context, smartclaim.PolicyInput{
					PolicyHolder: c.String("holder"),
					Payout:       c.String("payout"),
					Condition:    c.String("condition"),
				})
			}),
		},
		{
			Name:  "claim",
			Usage: "submit, approve or pay out a claim",
			Subcommands: []*cli.Command{
				{
					Name: "submit",
					Flags: []cli.Flag{
						serverFlag,
						&cli.StringFlag{Name: "policy", Required: true},
						&cli.StringFlag{Name: "evidence"},
						&cli.StringFlag{Name: "attachment", Usage: "file name referenced as evidence"},
					},
					Action: withClient(func(c *cli.Context, client *smartclaim.Client) (any, error) {
						return client.SubmitClaim(c.Context, smartclaim.ClaimInput{
							PolicyID:       c.String("policy"),
							Evidence:       c.String("evidence"),
							AttachmentName: c.String("attachment"),
						})
					}),
				},
				{
					Name:  "approve",
					Flags: []cli.Flag{serverFlag, &cli.StringFlag{Name: "policy", Required: true}},
					Action: withClient(func(c *cli.Context, client *smartclaim.Client) (any, error) {
						return client.ApproveClaim(c.Context, c.String("policy"))
					}),
				},
				{
					Name:  "payout",
					Flags: []cli.Flag{serverFlag, &cli.StringFlag{Name: "policy", Required: true}},
					Action: withClient(func(c *cli.Context, client *smartclaim.Client) (any, error) {
						return client.Payout(c.Context, c.String("policy"))
					}),
				},
			},
		},
		{
			Name:  "notices",
			Usage: "list recent notices",
			Flags: []cli.Flag{serverFlag, &cli.IntFlag{Name: "limit", Value: 20}},
			Action: withClient(func(c *cli.Context, client *smartclaim.Client) (any, error) {
				return client.Notices(c.Context, c.Int("limit"))
			}),
		},
	}
}

func withClient(fn func(*cli.Context, *smartclaim.Client) (any, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		client, err := smartclaim.NewClient(c.String(serverFlag.Name), nil)
		if err != nil {
			return err
		}
		out, err := fn(c, client)
		var apiErr *smartclaim.APIError
		if errors.As(err, &apiErr) && apiErr.Notice != nil {
			fmt.Fprintln(os.Stderr, apiErr.Notice.Message)
			return cli.Exit("", 1)
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
}
