package handler

import (
	"embed"
	"html/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed templates/login.html
var templateFS embed.FS

var loginPage = template.Must(template.ParseFS(templateFS, "templates/login.html"))

type pageData struct {
	Action      string
	Redirect    string
	PhoneNumber string
	Notice      string
	Nonce       string
	Lang        string
	Labels      labels
}

type labels struct {
	Title    string
	Phone    string
	Password string
	Submit   string
}

func init() {
	zh := language.SimplifiedChinese
	message.SetString(zh, "page.title", "萌姨萌嫂智能助手")
	message.SetString(zh, "page.phone", "手机号")
	message.SetString(zh, "page.password", "密码")
	message.SetString(zh, "page.submit", "登录")

	en := language.English
	message.SetString(en, "page.title", "Assistant sign in")
	message.SetString(en, "page.phone", "Phone number")
	message.SetString(en, "page.password", "Password")
	message.SetString(en, "page.submit", "Sign in")
}

func labelsFor(tag language.Tag) labels {
	p := message.NewPrinter(tag)
	return labels{
		Title:    p.Sprintf("page.title"),
		Phone:    p.Sprintf("page.phone"),
		Password: p.Sprintf("page.password"),
		Submit:   p.Sprintf("page.submit"),
	}
}
