package ui

import (
	"fmt"
	"net/http"
	"time"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"branchcheck/internal/domain"
)

const stylesheet = `body{font-family:system-ui,sans-serif;margin:0;color:#1f2328;background:#f6f8fa}
.layout{max-width:1200px;margin:0 auto;padding:24px}
.card{background:#fff;border:1px solid #d0d7de;border-radius:6px;padding:16px;margin-bottom:16px}
.muted{color:#656d76;font-size:14px}
table{border-collapse:collapse;width:100%;font-size:14px}
th,td{border-bottom:1px solid #d0d7de;padding:6px 8px;text-align:left}
td.num{text-align:right;font-variant-numeric:tabular-nums}
.status-success{color:#1a7f37}.status-failed{color:#cf222e}.status-running{color:#9a6700}
.warning{background:#fff8c5;border-color:#d4a72c}
button,select{font-size:14px;padding:6px 10px}`

func serveStylesheet(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write([]byte(stylesheet))
}

func page(title string, body ...gomponents.Node) gomponents.Node {
	return html.HTML(
		html.Lang("en"),
		html.Head(
			html.Meta(html.Charset("utf-8")),
			html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
			html.TitleEl(gomponents.Text(title+" | Branch Validation")),
			html.Link(html.Rel("icon"), html.Href("data:,")),
			html.Link(html.Rel("stylesheet"), html.Href("/ui/static/app.css")),
		),
		html.Body(
			html.Main(
				html.Class("layout"),
				html.H1(html.A(html.Href("/ui/"), gomponents.Text("Data Validation Tests"))),
				html.H2(gomponents.Text(title)),
				gomponents.Group(body),
			),
		),
	)
}

func errorPage(title, message string) gomponents.Node {
	return page(title,
		html.Div(html.Class("card"), html.P(gomponents.Text(message))),
		html.P(html.A(html.Href("/ui/"), gomponents.Text("Back to branches"))),
	)
}

// branchLabel matches how branches are shown in the picker: "<id> - <name>".
func branchLabel(b domain.Branch) string {
	if b.Name == "" {
		return b.ID
	}
	return b.ID + " - " + b.Name
}

func homePage(token gomponents.Node, branches []domain.Branch, runs []domain.RunRecord) gomponents.Node {
	options := make([]gomponents.Node, 0, len(branches))
	for _, b := range branches {
		options = append(options, html.Option(html.Value(b.ID), gomponents.Text(branchLabel(b))))
	}

	picker := html.Div(html.Class("card"), html.P(html.Class("muted"), gomponents.Text("No branches found.")))
	if len(branches) > 0 {
		picker = html.Form(
			html.Class("card"),
			html.Method("post"),
			html.Action("/ui/runs"),
			token,
			html.Label(html.For("branch"), gomponents.Text("Select a branch to validate")),
			html.P(html.Select(html.ID("branch"), html.Name("branch"), gomponents.Group(options))),
			html.Button(html.Type("submit"), gomponents.Text("Run Validation Tests")),
		)
	}

	return page("Branches", picker, recentRuns(runs))
}

func recentRuns(runs []domain.RunRecord) gomponents.Node {
	if len(runs) == 0 {
		return nil
	}
	rows := make([]gomponents.Node, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, html.Tr(
			html.Td(html.A(html.Href("/ui/runs/"+r.ID), gomponents.Text(r.ID))),
			html.Td(gomponents.Text(r.BranchID)),
			html.Td(html.Class("status-"+r.Status), gomponents.Text(r.Status)),
			html.Td(gomponents.Text(r.StartedAt.Format(time.RFC3339))),
			html.Td(html.Class("num"), gomponents.Text(fmt.Sprint(r.ResultCount))),
		))
	}
	return html.Div(
		html.Class("card"),
		html.H3(gomponents.Text("Recent runs")),
		html.Table(
			html.THead(html.Tr(
				html.Th(gomponents.Text("Run")), html.Th(gomponents.Text("Branch")),
				html.Th(gomponents.Text("Status")), html.Th(gomponents.Text("Started")),
				html.Th(gomponents.Text("Rows")),
			)),
			html.TBody(gomponents.Group(rows)),
		),
	)
}

func resultsPage(rec *domain.RunRecord, rs *domain.ResultSet, downloadable bool) gomponents.Node {
	records := rs.Records()
	title := "Test Results for branch " + rec.BranchID

	summary := html.P(html.Class("muted"),
		gomponents.Textf("Run %s, %s. %d rows across %d tables and %d tests.",
			rec.ID, rec.Status, len(records), distinct(records, func(r domain.ResultRow) string { return r.TableName }),
			distinct(records, func(r domain.ResultRow) string { return r.TestName })),
	)

	var download gomponents.Node
	if downloadable {
		download = html.P(
			html.A(html.Href("/ui/runs/"+rec.ID+"/download?format=csv"), gomponents.Text("Download CSV")),
			gomponents.Text(" · "),
			html.A(html.Href("/ui/runs/"+rec.ID+"/download?format=json"), gomponents.Text("Download JSON")),
		)
	}

	if len(records) == 0 {
		return page(title, summary,
			html.Div(html.Class("card warning"), gomponents.Text("No test results found for the selected branch.")))
	}

	header := make([]gomponents.Node, 0, len(rs.Columns))
	for _, c := range domain.ResultColumns {
		header = append(header, html.Th(gomponents.Text(c)))
	}
	rows := make([]gomponents.Node, 0, len(records))
	for _, r := range records {
		rows = append(rows, html.Tr(
			html.Td(gomponents.Text(r.TableName)),
			html.Td(gomponents.Text(r.TestName)),
			html.Td(gomponents.Text(strOrDash(r.SourceBucket))),
			html.Td(gomponents.Text(strOrDash(r.SourceTable))),
			html.Td(gomponents.Text(strOrDash(r.Parameter1))),
			html.Td(gomponents.Text(strOrDash(r.Parameter2))),
			html.Td(gomponents.Text(strOrDash(r.Parameter3))),
			html.Td(gomponents.Text(strOrDash(r.Parameter4))),
			html.Td(gomponents.Text(string(r.Environment))),
			html.Td(html.Class("num"), gomponents.Text(formatValue(r.Value))),
		))
	}

	return page(title, summary, download, html.Div(
		html.Class("card"),
		html.Table(html.THead(html.Tr(header...)), html.TBody(gomponents.Group(rows))),
	))
}

func distinct(rows []domain.ResultRow, key func(domain.ResultRow) string) int {
	seen := map[string]struct{}{}
	for _, r := range rows {
		seen[key(r)] = struct{}{}
	}
	return len(seen)
}
