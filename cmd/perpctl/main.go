// perpctl 调用 perpbot HTTP 接口的命令行工具。
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/betbot/goperp/internal/api"
	"github.com/betbot/goperp/internal/domain"
)

const usage = `用法: perpctl [flags] <command> [args]

命令:
  positions                         仓位列表
  open <product> <long|short> <size> [leverage]
  close <product>                   全部平仓
  partial <product> <fraction>      部分平仓，例如 0.5 或 50%%
  tp <product> <price|pct%%>         设置止盈
  sl <product> <price|pct%%>         设置止损
  clear-triggers <product>          撤销 TP/SL
  orders                            交易所挂单
  cancel <product> <digest> [trigger]
  cancel-all                        撤销全部挂单
  balance                           子账户余额
  history [product] [since]         平仓历史，since 例如 24h
  stats [product] [since]           平仓统计
  scenarios <product> <long|short> <size> [leverage]

flags:
`

func main() {
	_ = godotenv.Load()
	addr := flag.String("addr", envOr("PERPCTL_ADDR", "http://127.0.0.1:8089"), "perpbot API 地址")
	token := flag.String("token", os.Getenv("API_TOKEN"), "API token")
	timeout := flag.Duration("timeout", 30*time.Second, "请求超时")
	asJSON := flag.Bool("json", false, "输出原始 JSON")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := api.NewClient(*addr, *token, *timeout)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := dispatch(ctx, c, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if *asJSON {
		printJSON(out)
		return
	}
	render(out)
}

func dispatch(ctx context.Context, c *api.Client, cmd string, args []string) (any, error) {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s 需要 %d 个参数", cmd, n)
		}
		return nil
	}
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch cmd {
	case "positions", "pos":
		return c.Positions(ctx)
	case "open":
		if err := need(3); err != nil {
			return nil, err
		}
		return c.Open(ctx, args[0], args[1], args[2], arg(3))
	case "close":
		if err := need(1); err != nil {
			return nil, err
		}
		return c.Close(ctx, args[0])
	case "partial":
		if err := need(2); err != nil {
			return nil, err
		}
		return c.PartialClose(ctx, args[0], args[1])
	case "tp", "sl":
		if err := need(2); err != nil {
			return nil, err
		}
		role := domain.RoleTakeProfit
		if cmd == "sl" {
			role = domain.RoleStopLoss
		}
		return c.SetTrigger(ctx, args[0], role, args[1])
	case "clear-triggers":
		if err := need(1); err != nil {
			return nil, err
		}
		return c.ClearTriggers(ctx, args[0])
	case "orders":
		return c.OpenOrders(ctx)
	case "cancel":
		if err := need(2); err != nil {
			return nil, err
		}
		isTrigger := false
		if v := arg(2); v != "" {
			isTrigger = v == "trigger" || v == "true"
		}
		return c.CancelOrder(ctx, args[0], args[1], isTrigger)
	case "cancel-all":
		return c.CancelAll(ctx)
	case "balance":
		return c.Balance(ctx)
	case "history":
		return c.History(ctx, arg(0), arg(1), 50)
	case "stats":
		return c.Stats(ctx, arg(0), arg(1))
	case "scenarios":
		if err := need(3); err != nil {
			return nil, err
		}
		return c.Scenarios(ctx, args[0], args[1], args[2], arg(3))
	}
	return nil, fmt.Errorf("未知命令 %q", cmd)
}

func render(v any) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	switch out := v.(type) {
	case []domain.PositionView:
		if len(out) == 0 {
			fmt.Fprintln(w, "无持仓")
			return
		}
		fmt.Fprintln(w, "PRODUCT\tSIDE\tSIZE\tENTRY\tMARK\tPNL\tPNL%\tTP\tSL")
		for _, p := range out {
			fmt.Fprintf(w, "%s(%d)\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				p.Symbol, p.ProductID, p.Side, p.Size, p.EntryPrice, p.MarkPrice,
				p.UnrealizedPnL.StringFixed(2), p.UnrealizedPct.StringFixed(2), ptr(p.TakeProfit), ptr(p.StopLoss))
		}
	case api.ResultResponse:
		fmt.Fprintf(w, "outcome:\t%s\n", out.Result.Outcome)
		if out.Result.Digest != "" {
			fmt.Fprintf(w, "digest:\t%s\n", out.Result.Digest)
		}
		if t := out.Result.Trigger; t != nil {
			fmt.Fprintf(w, "trigger:\t%s %s %s exec=%s\n", t.Role, t.Direction, t.TriggerPrice, t.ExecPrice)
		}
		if out.Result.Cancelled > 0 {
			fmt.Fprintf(w, "cancelled:\t%d\n", out.Result.Cancelled)
		}
		if msg := strings.TrimSpace(out.Result.Message + " " + out.Error); msg != "" {
			fmt.Fprintf(w, "message:\t%s\n", msg)
		}
		if out.Result.Outcome == domain.OutcomeUnknown {
			fmt.Fprintln(w, "结果未知：等待对账确认后再重试")
		}
	case []domain.ClosedTrade:
		fmt.Fprintln(w, "CLOSED\tPRODUCT\tSIDE\tSIZE\tENTRY\tEXIT\tPNL\tREASON")
		for _, t := range out {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ClosedAt.Local().Format("01-02 15:04:05"), t.Symbol, t.Side, t.Size, t.EntryPrice, t.ExitPrice, t.PnL.StringFixed(4), t.Reason)
		}
	default:
		printJSON(v)
	}
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func ptr(v *decimal.Decimal) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
