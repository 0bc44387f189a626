package http

import (
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v2"
)

// DefaultSpecPath is where the OpenAPI document lives relative to the working directory.
const DefaultSpecPath = "api/openapi.yaml"

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Meetpoint API</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body style="margin:0">
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: '/docs/openapi.yaml', dom_id: '#swagger-ui', deepLinking: true});
  </script>
</body>
</html>`

const graphiQLHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Meetpoint GraphQL</title>
  <link rel="stylesheet" href="https://unpkg.com/graphiql@3/graphiql.min.css">
</head>
<body style="margin:0;height:100vh">
  <div id="graphiql" style="height:100vh"></div>
  <script src="https://unpkg.com/react@18/umd/react.production.min.js"></script>
  <script src="https://unpkg.com/react-dom@18/umd/react-dom.production.min.js"></script>
  <script src="https://unpkg.com/graphiql@3/graphiql.min.js"></script>
  <script>
    const fetcher = GraphiQL.createFetcher({url: '/graphql'});
    ReactDOM.createRoot(document.getElementById('graphiql')).render(
      React.createElement(GraphiQL, {
        fetcher,
        defaultQuery: '{ meetingPoint(locations: [{latitude: 43.2614, longitude: -2.927}, {latitude: 43.2709, longitude: -2.9482}]) { run_id optimal_point { coordinate { latitude longitude } } selection { max_travel_time tie_break } } }',
      }),
    );
  </script>
</body>
</html>`

// SetupDocs registers Swagger UI at /docs, the OpenAPI document at
// /docs/openapi.yaml and GraphiQL at GET /graphql. The document is read once;
// when it is missing the docs routes answer 404.
func SetupDocs(app *fiber.App, specPath string) {
	if specPath == "" {
		specPath = DefaultSpecPath
	}
	spec, err := os.ReadFile(specPath)
	if err != nil {
		slog.Warn("openapi document unavailable", "path", specPath, "error", err)
	}

	app.Get("/docs", func(c *fiber.Ctx) error {
		if spec == nil {
			return newError(c, fiber.StatusNotFound, "not_found", "API documentation is not installed")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(swaggerUIHTML)
	})

	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		if spec == nil {
			return newError(c, fiber.StatusNotFound, "not_found", "openapi.yaml not found")
		}
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(spec)
	})

	app.Get("/graphql", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(graphiQLHTML)
	})
}
