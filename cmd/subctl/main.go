/**
 * @description
 * subctl is a command-line client for the camfinder server. It covers the
 * device-facing endpoints plus the admin workflow (pending payment review,
 * activation, rejection, revocation and device management), printing every
 * server response as indented JSON.
 */
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ivanod1994/camfinder-server/pkg/subscriptionclient"
)

const usage = `Usage: subctl [-url URL] [-key ADMIN_KEY] <command> [arguments]

Device commands:
  register <device_id>                  register a device
  status <device_id>                    show subscription status
  use-free <device_id> [-count N]       consume free attempts
  pay <device_id> -tx TX [-plan P] [-comment C] [-amount N] [-currency CUR]
                                        submit a payment for review
  config                                show server plans and wallets

Admin commands (require -key or SUBCTL_ADMIN_KEY):
  pending                               list pending payment submissions
  activate -device DEVICE [-payment ID] [-months N] [-dev]
                                        approve a payment / grant a subscription
  reject -payment ID                    reject a pending submission
  revoke <device_id>                    revoke a device's subscription
  devices                               list all devices
  delete-device <device_id>             delete a device record
  set-free <device_id> -count N         set a device's free attempt counter
`

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", envOr("SUBCTL_URL", "http://localhost:8080"), "server base URL")
	adminKey := flag.String("key", os.Getenv("SUBCTL_ADMIN_KEY"), "admin credential for admin commands")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client := subscriptionclient.NewClient(*baseURL, *adminKey)
	ctx := context.Background()

	command, rest := args[0], args[1:]
	if err := run(ctx, client, command, rest); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *subscriptionclient.Client, command string, args []string) error {
	switch command {
	case "register":
		deviceID, err := requireArg(args, "device_id")
		if err != nil {
			return err
		}
		resp, err := client.RegisterDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "status":
		deviceID, err := requireArg(args, "device_id")
		if err != nil {
			return err
		}
		resp, err := client.DeviceStatus(ctx, deviceID)
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "use-free":
		fs := flag.NewFlagSet("use-free", flag.ExitOnError)
		count := fs.Int("count", 1, "attempts to consume")
		deviceID, err := parseWithDeviceArg(fs, args)
		if err != nil {
			return err
		}
		resp, err := client.ConsumeFree(ctx, deviceID, *count)
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "pay":
		fs := flag.NewFlagSet("pay", flag.ExitOnError)
		tx := fs.String("tx", "", "transaction reference (required)")
		plan := fs.String("plan", "", "plan label")
		comment := fs.String("comment", "", "comment for the admin")
		amount := fs.Int64("amount", 0, "paid amount, informational")
		currency := fs.String("currency", "", "payment currency")
		deviceID, err := parseWithDeviceArg(fs, args)
		if err != nil {
			return err
		}
		if *tx == "" {
			return fmt.Errorf("-tx is required")
		}
		req := subscriptionclient.SubmitPaymentRequest{DeviceID: deviceID, Tx: *tx}
		if *plan != "" {
			req.Plan = plan
		}
		if *comment != "" {
			req.Comment = comment
		}
		if *amount != 0 {
			req.Amount = amount
		}
		if *currency != "" {
			req.Currency = currency
		}
		resp, err := client.SubmitPayment(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "config":
		resp, err := client.GetConfig(ctx)
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "pending":
		subs, err := client.PendingPayments(ctx)
		if err != nil {
			return err
		}
		return printJSON(subs)

	case "activate":
		fs := flag.NewFlagSet("activate", flag.ExitOnError)
		device := fs.String("device", "", "device id (required)")
		payment := fs.String("payment", "", "payment submission id; omit for a manual grant")
		months := fs.Int("months", 1, "months to extend")
		dev := fs.Bool("dev", false, "mark the record as a developer/comp activation")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *device == "" {
			return fmt.Errorf("-device is required")
		}
		params := subscriptionclient.ActivateParams{DeviceID: *device, Months: *months, Dev: *dev}
		if *payment != "" {
			params.PaymentID = payment
		}
		resp, err := client.Activate(ctx, params)
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "reject":
		fs := flag.NewFlagSet("reject", flag.ExitOnError)
		payment := fs.String("payment", "", "payment submission id (required)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *payment == "" {
			return fmt.Errorf("-payment is required")
		}
		if err := client.Reject(ctx, *payment); err != nil {
			return err
		}
		fmt.Println("rejected")
		return nil

	case "revoke":
		deviceID, err := requireArg(args, "device_id")
		if err != nil {
			return err
		}
		if err := client.Revoke(ctx, deviceID); err != nil {
			return err
		}
		fmt.Println("revoked")
		return nil

	case "devices":
		devices, err := client.Devices(ctx)
		if err != nil {
			return err
		}
		return printJSON(devices)

	case "delete-device":
		deviceID, err := requireArg(args, "device_id")
		if err != nil {
			return err
		}
		if err := client.DeleteDevice(ctx, deviceID); err != nil {
			return err
		}
		fmt.Println("deleted")
		return nil

	case "set-free":
		fs := flag.NewFlagSet("set-free", flag.ExitOnError)
		count := fs.Int("count", 0, "new free attempt count")
		deviceID, err := parseWithDeviceArg(fs, args)
		if err != nil {
			return err
		}
		resp, err := client.SetFree(ctx, deviceID, *count)
		if err != nil {
			return err
		}
		return printJSON(resp)

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// parseWithDeviceArg parses flags that follow a positional device_id.
func parseWithDeviceArg(fs *flag.FlagSet, args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", fmt.Errorf("device_id argument is required")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return "", err
	}
	return args[0], nil
}

func requireArg(args []string, name string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", fmt.Errorf("%s argument is required", name)
	}
	return args[0], nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
