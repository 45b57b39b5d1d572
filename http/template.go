package http

import "html/template"

const formHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Sentiment Analysis</title>
    <style>
        body { font-family: sans-serif; background-color: #f4f4f9; }
        .container { max-width: 500px; margin: 50px auto; padding: 20px; background: white; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        textarea { width: 95%; padding: 10px; margin-bottom: 10px; border-radius: 4px; border: 1px solid #ccc; }
        input[type="submit"] { background-color: #007bff; color: white; padding: 10px 15px; border: none; border-radius: 4px; cursor: pointer; }
        h2 { color: #333; }
        .result { margin-top: 20px; font-size: 1.2em; }
        .positive { color: green; }
        .negative { color: red; }
    </style>
</head>
<body>
    <div class="container">
        <h2>Customer Review Sentiment Analysis</h2>
        <form action="/" method="post">
            <textarea name="text" rows="4" placeholder="Enter review text here..."></textarea><br>
            <input type="submit" value="Predict">
        </form>
        {{- if .Prediction}}
            <div class="result">
                Prediction:
                <span class="{{if .Positive}}positive{{else}}negative{{end}}"><b>{{.Prediction}}</b></span>
            </div>
        {{- end}}
    </div>
</body>
</html>
`

var formTemplate = template.Must(template.New("form").Parse(formHTML))

// formView 页面数据
type formView struct {
	Prediction string
	Positive   bool
}
