package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/dushixiang/vole/internal/config"
	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/repo"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// 周报中保留的进程数量
const reportTopProcessCount = 10

// HostWeeklyStats 单台主机的周度统计
type HostWeeklyStats struct {
	Name        string
	Address     string
	CPUAvg      float64
	MemoryAvg   float64
	DiskMax     float64
	CPUDelta    float64 // 与上周均值的差
	MemoryDelta float64
}

// TopProcess 周报中的进程条目
type TopProcess struct {
	Address string
	models.ProcessInfo
}

// WeeklyReport 周度运行报告
type WeeklyReport struct {
	Start        time.Time
	End          time.Time
	Hosts        []HostWeeklyStats
	Alerts       []models.AlertRecord
	TopProcesses []TopProcess
}

// ReportService 周报服务
type ReportService struct {
	logger     *zap.Logger
	hostRepo   *repo.HostRepo
	sampleRepo *repo.SampleRepo
	alertRepo  *repo.AlertRepo
	mail       *config.MailConfig
}

func NewReportService(logger *zap.Logger, db *gorm.DB, mail *config.MailConfig) *ReportService {
	return &ReportService{
		logger:     logger,
		hostRepo:   repo.NewHostRepo(db),
		sampleRepo: repo.NewSampleRepo(db),
		alertRepo:  repo.NewAlertRepo(db),
		mail:       mail,
	}
}

// Build 汇总最近7天的统计数据
func (s *ReportService) Build(ctx context.Context, now time.Time) (*WeeklyReport, error) {
	end := now
	start := now.AddDate(0, 0, -7)
	prevStart := start.AddDate(0, 0, -7)

	hosts, err := s.hostRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &WeeklyReport{Start: start, End: end}

	for _, host := range hosts {
		stats := HostWeeklyStats{Name: host.Name, Address: host.Address}

		startMs, endMs := start.UnixMilli(), end.UnixMilli()
		prevStartMs := prevStart.UnixMilli()

		if stats.CPUAvg, err = s.sampleRepo.CPUAverage(ctx, host.ID, startMs, endMs); err != nil {
			return nil, err
		}
		if stats.MemoryAvg, err = s.sampleRepo.MemoryAverage(ctx, host.ID, startMs, endMs); err != nil {
			return nil, err
		}
		if stats.DiskMax, err = s.sampleRepo.DiskMax(ctx, host.ID, startMs, endMs); err != nil {
			return nil, err
		}

		// 与上周对比
		prevCPU, err := s.sampleRepo.CPUAverage(ctx, host.ID, prevStartMs, startMs)
		if err != nil {
			return nil, err
		}
		prevMemory, err := s.sampleRepo.MemoryAverage(ctx, host.ID, prevStartMs, startMs)
		if err != nil {
			return nil, err
		}
		stats.CPUDelta = stats.CPUAvg - prevCPU
		stats.MemoryDelta = stats.MemoryAvg - prevMemory

		report.Hosts = append(report.Hosts, stats)

		// 收集各主机最新进程快照
		procSample, err := s.sampleRepo.FindLatestProcess(ctx, host.ID)
		if err != nil {
			return nil, err
		}
		if procSample != nil {
			for _, p := range procSample.Processes {
				report.TopProcesses = append(report.TopProcesses, TopProcess{
					Address:     host.Address,
					ProcessInfo: p,
				})
			}
		}
	}

	// 按内存占用排序，保留前N个
	sort.Slice(report.TopProcesses, func(i, j int) bool {
		return report.TopProcesses[i].MemoryPercent > report.TopProcesses[j].MemoryPercent
	})
	if len(report.TopProcesses) > reportTopProcessCount {
		report.TopProcesses = report.TopProcesses[:reportTopProcessCount]
	}

	if report.Alerts, err = s.alertRepo.FindSince(ctx, start.UnixMilli()); err != nil {
		return nil, err
	}

	return report, nil
}

// Render 渲染HTML周报
func (s *ReportService) Render(report *WeeklyReport) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", fmt.Errorf("渲染周报失败: %w", err)
	}
	return buf.String(), nil
}

// SendWeekly 生成并发送周报邮件
func (s *ReportService) SendWeekly(ctx context.Context) error {
	if s.mail == nil || s.mail.Host == "" || len(s.mail.To) == 0 {
		s.logger.Warn("邮件未配置，跳过周报发送")
		return nil
	}

	report, err := s.Build(ctx, time.Now())
	if err != nil {
		s.logger.Error("生成周报失败", zap.Error(err))
		return err
	}

	html, err := s.Render(report)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.mail.From)
	m.SetHeader("To", s.mail.To...)
	m.SetHeader("Subject", fmt.Sprintf("服务器监控周报 %s ~ %s",
		report.Start.Format("2006-01-02"), report.End.Format("2006-01-02")))
	m.SetBody("text/html", html)

	d := gomail.NewDialer(s.mail.Host, s.mail.Port, s.mail.Username, s.mail.Password)
	if err := d.DialAndSend(m); err != nil {
		s.logger.Error("发送周报失败", zap.Error(err))
		return err
	}

	s.logger.Info("周报发送成功",
		zap.Int("hosts", len(report.Hosts)),
		zap.Int("alerts", len(report.Alerts)))
	return nil
}

var reportTemplate = template.Must(template.New("weekly").Funcs(template.FuncMap{
	"percent": func(v float64) string { return fmt.Sprintf("%.2f%%", v) },
	"delta": func(v float64) string {
		if v >= 0 {
			return fmt.Sprintf("+%.2f%%", v)
		}
		return fmt.Sprintf("%.2f%%", v)
	},
	"millis": func(ms int64) string {
		return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
	},
}).Parse(`<html>
<body style="font-family: sans-serif;">
<h2>服务器监控周报</h2>
<p>统计区间: {{.Start.Format "2006-01-02"}} ~ {{.End.Format "2006-01-02"}}</p>

<h3>资源使用概览</h3>
<table border="1" cellspacing="0" cellpadding="6">
<tr><th>主机</th><th>地址</th><th>CPU均值</th><th>内存均值</th><th>磁盘峰值</th><th>CPU环比</th><th>内存环比</th></tr>
{{range .Hosts}}
<tr>
<td>{{.Name}}</td>
<td>{{.Address}}</td>
<td>{{percent .CPUAvg}}</td>
<td>{{percent .MemoryAvg}}</td>
<td>{{percent .DiskMax}}</td>
<td>{{delta .CPUDelta}}</td>
<td>{{delta .MemoryDelta}}</td>
</tr>
{{end}}
</table>

<h3>本周预警（{{len .Alerts}}条）</h3>
{{if .Alerts}}
<table border="1" cellspacing="0" cellpadding="6">
<tr><th>时间</th><th>主机</th><th>类型</th><th>级别</th><th>内容</th></tr>
{{range .Alerts}}
<tr>
<td>{{millis .CreatedAt}}</td>
<td>{{.Address}}</td>
<td>{{.AlertType}}</td>
<td>{{.Level}}</td>
<td>{{.Message}}</td>
</tr>
{{end}}
</table>
{{else}}
<p>本周无预警。</p>
{{end}}

<h3>内存占用Top进程</h3>
{{if .TopProcesses}}
<table border="1" cellspacing="0" cellpadding="6">
<tr><th>主机</th><th>PID</th><th>进程</th><th>用户</th><th>CPU</th><th>内存</th></tr>
{{range .TopProcesses}}
<tr>
<td>{{.Address}}</td>
<td>{{.PID}}</td>
<td>{{.Name}}</td>
<td>{{.Username}}</td>
<td>{{percent .CPUPercent}}</td>
<td>{{percent .MemoryPercent}}</td>
</tr>
{{end}}
</table>
{{else}}
<p>暂无进程数据。</p>
{{end}}
</body>
</html>
`))
