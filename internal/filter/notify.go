package filter

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/RecoveryAshes/shadowscraper/internal/utils"
)

// EmailSettings 通知邮件配置
type EmailSettings struct {
	Enabled  bool
	SMTPHost string
	SMTPPort int
	Sender   string
	Password string
	Receiver string // 逗号分隔的收件人列表
}

// SendNotification 对新增房源发送邮件通知
// 未启用、配置不全或无新增时静默跳过
func SendNotification(settings EmailSettings, listings []*Listing) error {
	if !settings.Enabled {
		utils.Info("邮件通知未启用")
		return nil
	}
	if settings.Sender == "" || settings.Password == "" || settings.Receiver == "" {
		utils.Info("邮件凭据或收件人未配置,跳过通知")
		return nil
	}
	if len(listings) == 0 {
		utils.Info("无新增房源,跳过通知")
		return nil
	}

	recipients := splitRecipients(settings.Receiver)
	subject := "Nuevas propiedades que cumplen los filtros"
	body := buildBody(listings)

	message := strings.Join([]string{
		"From: " + settings.Sender,
		"To: " + strings.Join(recipients, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", settings.SMTPHost, settings.SMTPPort)
	auth := smtp.PlainAuth("", settings.Sender, settings.Password, settings.SMTPHost)

	if err := smtp.SendMail(addr, auth, settings.Sender, recipients, []byte(message)); err != nil {
		return fmt.Errorf("SMTP发送失败: %w", err)
	}

	utils.Infof("📧 邮件通知已发送: %s (%d条新增房源)", strings.Join(recipients, ", "), len(listings))
	return nil
}

func splitRecipients(raw string) []string {
	var recipients []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return recipients
}

// buildBody 西语通知正文,每条房源一个条目
func buildBody(listings []*Listing) string {
	var sb strings.Builder
	sb.WriteString("Se encontraron nuevas propiedades que cumplen los filtros establecidos:\n\n")

	for _, l := range listings {
		title := l.Title
		if title == "" {
			title = "Sin título"
		}
		location := l.Location
		if location == "" {
			location = "Sin ubicación"
		}

		price := 0
		if l.Price != nil {
			price = *l.Price
		}
		bedrooms, bathrooms := 0, 0
		if l.Bedrooms != nil {
			bedrooms = *l.Bedrooms
		}
		if l.Bathrooms != nil {
			bathrooms = *l.Bathrooms
		}
		area := 0.0
		if l.AreaM2 != nil {
			area = *l.AreaM2
		}

		fmt.Fprintf(&sb, " - %s (%s)\n   Precio: $%d COP\n   Habitaciones: %d, Baños: %d, Área: %.1f m²\n   URL: %s\n",
			title, location, price, bedrooms, bathrooms, area, l.URL)
	}
	return sb.String()
}
