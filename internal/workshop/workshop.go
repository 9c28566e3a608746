// Package workshop 负责“定位创意工坊页面 + 解析 HTML”。
//
// 约束：
// - Resolve 不做缓存：每次运行都重新抓取（合集内容随时在变）
// - Parse 必须是纯函数：相同输入 => 相同输出
// - 网络策略（UA/重试/退避/超时）在 httpx 统一实现，这里不重复
package workshop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/domain"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/infra/httpx"
)

const (
	StageFetch = "fetch"
	StageParse = "parse"
)

// Error 是解析链路的可追溯错误。
// 上层据此把失败归类为 fetch_failed / parse_failed，并写入 report。
type Error struct {
	Stage string // "fetch" 或 "parse"
	URL   string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("workshop stage=%s url=%s: %v", e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	pageIDRE    = regexp.MustCompile(`[?&]id=(\d+)`)
	hrefIDRE    = regexp.MustCompile(`id=(\d+)`)
	appIDRE     = regexp.MustCompile(`app/(\d+)`)
	gameLabelRE = regexp.MustCompile(`(?i)^\s*Game:\s*`)
)

// 合集页与单物品页都用这种链接指向物品详情。
const itemLinkSelector = "a[href*='steamcommunity.com/sharedfiles/filedetails/?id=']"

// Resolve 抓取页面并解析为 PageInfo。
func Resolve(ctx context.Context, c *http.Client, pageURL string) (domain.PageInfo, error) {
	b, err := httpx.Get(ctx, c, pageURL)
	if err != nil {
		return domain.PageInfo{}, &Error{Stage: StageFetch, URL: pageURL, Err: err}
	}
	info, err := Parse(b, pageURL)
	if err != nil {
		return domain.PageInfo{}, &Error{Stage: StageParse, URL: pageURL, Err: err}
	}
	return info, nil
}

// Parse 把创意工坊页面 HTML 解析为 PageInfo（纯函数）。
//
// 规则：
// - 物品集合来自页面上的 filedetails 链接；无链接时退回页面自身 id
// - 合集判定：页面自身有 id，且链接出现了多个物品或“不是自己”的物品
// - AppID 依次尝试：data-appid 属性 -> 原始 HTML 里的 app/<id> -> “Game:” 标签反查
func Parse(page []byte, pageURL string) (domain.PageInfo, error) {
	if len(page) == 0 {
		return domain.PageInfo{}, errors.New("html 为空")
	}
	if strings.TrimSpace(pageURL) == "" {
		return domain.PageInfo{}, errors.New("pageURL 不能为空")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return domain.PageInfo{}, err
	}

	var pageID domain.ItemID
	if m := pageIDRE.FindStringSubmatch(pageURL); m != nil {
		if id, ok := domain.ParseItemID(m[1]); ok {
			pageID = id
		}
	}

	ids := make([]domain.ItemID, 0, 16)
	doc.Find(itemLinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := hrefIDRE.FindStringSubmatch(href)
		if m == nil {
			return
		}
		if id, ok := domain.ParseItemID(m[1]); ok {
			ids = append(ids, id)
		}
	})
	ids = domain.SortItemIDs(ids)

	isCollection := false
	if pageID != "" {
		if len(ids) > 1 {
			isCollection = true
		} else {
			for _, id := range ids {
				if id != pageID {
					isCollection = true
				}
			}
		}
	}

	// 单物品兜底：页面没有物品链接时，把自身 id 当作唯一物品。
	if len(ids) == 0 && pageID != "" {
		ids = []domain.ItemID{pageID}
	}

	appID := ""
	if v, ok := doc.Find("*[data-appid]").First().Attr("data-appid"); ok {
		appID = strings.TrimSpace(v)
	}
	if appID == "" {
		if m := appIDRE.FindSubmatch(page); m != nil {
			appID = string(m[1])
		}
	}
	gameLabel := ""
	if appID == "" {
		gameLabel = findGameLabel(doc)
		if id, ok := domain.AppIDForGame(gameLabel); ok {
			appID = id
		}
	}

	gameName := ""
	if appID != "" {
		if name := domain.GameNameForApp(appID); name != appID {
			gameName = name
		}
	}
	if gameName == "" {
		if gameLabel == "" {
			gameLabel = findGameLabel(doc)
		}
		gameName = gameLabel
	}

	title := strings.TrimSpace(doc.Find("h1.workshopItemTitle").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1.collectionTitle").First().Text())
	}
	if title == "" {
		if v, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
			title = strings.TrimSpace(v)
		}
	}

	return domain.PageInfo{
		IsCollection:   isCollection,
		ItemIDs:        ids,
		AppID:          appID,
		GameName:       gameName,
		CollectionName: title,
		SourceURL:      pageURL,
	}, nil
}

// findGameLabel 在全部文本节点里找 “Game: <名字>” 右侧的名字。
// 选择器不方便匹配裸文本，这里直接走一遍 html 节点树。
func findGameLabel(doc *goquery.Document) string {
	var out string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.TextNode && gameLabelRE.MatchString(n.Data) {
			if t := strings.TrimSpace(gameLabelRE.ReplaceAllString(n.Data, "")); t != "" {
				out = t
				return false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	for _, n := range doc.Nodes {
		if !walk(n) {
			break
		}
	}
	return out
}
