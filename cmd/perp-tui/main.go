// perp-tui 终端仓位监控：定时拉取 perpbot 的仓位、余额和最近平仓记录。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/betbot/goperp/internal/api"
	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/types"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	upStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	downStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type snapshot struct {
	positions []domain.PositionView
	balance   types.BalanceSnapshot
	trades    []domain.ClosedTrade
	stats     domain.TradeStats
	at        time.Time
}

type snapshotMsg struct {
	snap snapshot
	err  error
}

type tickMsg time.Time

// model 界面状态
type model struct {
	client   *api.Client
	interval time.Duration

	snap    snapshot
	err     error
	loading bool
	width   int
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick(m.interval))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, m.fetch()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		return m, tea.Batch(m.fetch(), tick(m.interval))
	case snapshotMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
		}
	}
	return m, nil
}

func (m model) fetch() tea.Cmd {
	c := m.client
	timeout := m.interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		var s snapshot
		var err error
		if s.positions, err = c.Positions(ctx); err != nil {
			return snapshotMsg{err: err}
		}
		// 余额和历史失败不影响仓位展示
		s.balance, _ = c.Balance(ctx)
		s.trades, _ = c.History(ctx, "", "", 8)
		s.stats, _ = c.Stats(ctx, "", "")
		s.at = time.Now()
		return snapshotMsg{snap: s}
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Nado 仓位监控"))
	status := "更新于 " + m.snap.at.Format("15:04:05")
	if m.snap.at.IsZero() {
		status = "加载中..."
	}
	if m.loading {
		status += " (刷新中)"
	}
	b.WriteString("  " + dimStyle.Render(status) + "\n\n")
	if m.err != nil {
		b.WriteString(downStyle.Render("错误: "+m.err.Error()) + "\n\n")
	}

	b.WriteString(borderStyle.Render(m.renderPositions()) + "\n")
	b.WriteString(borderStyle.Render(m.renderAccount()) + "\n")
	b.WriteString(borderStyle.Render(m.renderTrades()) + "\n")
	b.WriteString(dimStyle.Render("r 刷新 · q 退出"))
	return b.String()
}

func (m model) renderPositions() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("持仓") + "\n")
	if len(m.snap.positions) == 0 {
		b.WriteString(dimStyle.Render("无持仓"))
		return b.String()
	}
	b.WriteString(fmt.Sprintf("%-10s %-5s %10s %10s %10s %10s %8s %10s %10s\n",
		"产品", "方向", "数量", "开仓价", "标记价", "盈亏", "盈亏%", "TP", "SL"))
	for _, p := range m.snap.positions {
		mark := p.MarkPrice.String()
		if !p.MarkAvailable {
			mark = "-"
		}
		line := fmt.Sprintf("%-10s %-5s %10s %10s %10s %10s %8s %10s %10s",
			p.Symbol, p.Side, p.Size.Abs(), p.EntryPrice, mark,
			p.UnrealizedPnL.StringFixed(2), p.UnrealizedPct.StringFixed(2),
			orDash(p.TakeProfit), orDash(p.StopLoss))
		b.WriteString(pnlStyle(p.UnrealizedPnL).Render(line) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m model) renderAccount() string {
	var total decimal.Decimal
	for _, p := range m.snap.positions {
		total = total.Add(p.UnrealizedPnL)
	}
	st := m.snap.stats
	return fmt.Sprintf("%s\n余额 %s  健康度 %s  浮动盈亏 %s\n已平仓 %d  胜率 %s%%  累计盈亏 %s",
		titleStyle.Render("账户"),
		m.snap.balance.QuoteBalance.StringFixed(2),
		m.snap.balance.InitialHealth.StringFixed(2),
		pnlStyle(total).Render(total.StringFixed(2)),
		st.Total, st.WinRate.StringFixed(1), pnlStyle(st.TotalPnL).Render(st.TotalPnL.StringFixed(2)))
}

func (m model) renderTrades() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("最近平仓") + "\n")
	if len(m.snap.trades) == 0 {
		b.WriteString(dimStyle.Render("暂无记录"))
		return b.String()
	}
	for _, t := range m.snap.trades {
		line := fmt.Sprintf("%s %-10s %-5s %8s %10s -> %-10s %10s %s",
			t.ClosedAt.Local().Format("01-02 15:04"), t.Symbol, t.Side, t.Size,
			t.EntryPrice, t.ExitPrice, t.PnL.StringFixed(2), t.Reason)
		b.WriteString(pnlStyle(t.PnL).Render(line) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func pnlStyle(v decimal.Decimal) lipgloss.Style {
	switch v.Sign() {
	case 1:
		return upStyle
	case -1:
		return downStyle
	}
	return lipgloss.NewStyle()
}

func orDash(v *decimal.Decimal) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

func main() {
	_ = godotenv.Load()
	addr := flag.String("addr", envOr("PERPCTL_ADDR", "http://127.0.0.1:8089"), "perpbot API 地址")
	token := flag.String("token", os.Getenv("API_TOKEN"), "API token")
	interval := flag.Duration("interval", 3*time.Second, "刷新间隔")
	flag.Parse()

	m := model{client: api.NewClient(*addr, *token, *interval), interval: *interval, loading: true}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
