package store_client

import (
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/handler"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/middleware"
	"github.com/gin-gonic/gin"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"
)

var (
	apiVersionHeader = fizz.Header(
		"API-Version",
		"De API-versie van de response",
		"", // lege string betekent: primitive string in de OpenAPI-definitie
	)

	notFoundResponse = fizz.Response(
		"404",
		"Not Found",
		nil,
		nil,
		nil,
	)

	badRequestResponse = fizz.Response(
		"400",
		"Bad Request",
		nil,
		nil,
		nil,
	)
)

func NewRouter(apiVersion string, controller *handler.CatalogController) *fizz.Fizz {
	g := gin.Default()
	g.Use(APIVersionMiddleware(apiVersion))
	f := fizz.NewFromEngine(g)

	f.Generator().SetServers([]*openapi.Server{
		{
			URL:         "https://api.developer.overheid.nl/app-store/v1",
			Description: "Production",
		},
	})

	gen := f.Generator()

	gen.API().Components.Responses["404"] = &openapi.ResponseOrRef{
		Reference: &openapi.Reference{
			Ref: "https://static.developer.overheid.nl/adr/components.yaml#/responses/404",
		},
	}

	gen.API().Components.Headers["API-Version"] = &openapi.HeaderOrRef{
		Header: &openapi.Header{
			Description: "De API-versie van de response",
			Schema: &openapi.SchemaOrRef{
				Schema: &openapi.Schema{
					Type: "string",
				},
			},
		},
	}

	info := &openapi.Info{
		Title:       "App Store API v1",
		Description: "Bronnen, apps en ondersteunde versies van de app store catalogus",
		Version:     apiVersion,
		Contact: &openapi.Contact{
			Name:  "Team developer.overheid.nl",
			Email: "developer@overheid.nl",
			URL:   "https://developer.overheid.nl",
		},
	}

	root := f.Group("/v1", "API v1", "App Store V1 routes")

	// Alleen-lezen endpoints
	read := root.Group("", "Lezen", "Alleen lezen endpoints", middleware.RequireAccess(middleware.ScopeRead))
	read.GET("/sources",
		[]fizz.OperationOption{
			fizz.Summary("Alle bronnen ophalen"),
			apiVersionHeader,
		},
		tonic.Handler(controller.ListSources, 200),
	)

	read.GET("/sources/:id",
		[]fizz.OperationOption{
			fizz.Summary("Specifieke bron met apps ophalen"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.RetrieveSource, 200),
	)

	read.GET("/sources/:id/catalog",
		[]fizz.OperationOption{
			fizz.Summary("Opgeslagen catalogus van een bron exporteren"),
			fizz.Description("Bevat naast versions ook de platte version/downloadURL velden voor oudere clients."),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.ExportSource, 200),
	)

	read.GET("/apps",
		[]fizz.OperationOption{
			fizz.Summary("Alle apps ophalen"),
			apiVersionHeader,
		},
		tonic.Handler(controller.ListApps, 200),
	)

	read.GET("/apps/:bundleId",
		[]fizz.OperationOption{
			fizz.Summary("Specifieke app ophalen"),
			apiVersionHeader,
			notFoundResponse,
			badRequestResponse,
		},
		tonic.Handler(controller.RetrieveApp, 200),
	)

	read.GET("/apps/:bundleId/versions",
		[]fizz.OperationOption{
			fizz.Summary("Alle versies van een app ophalen"),
			apiVersionHeader,
			notFoundResponse,
			badRequestResponse,
		},
		tonic.Handler(controller.ListVersions, 200),
	)

	read.GET("/apps/:bundleId/versions/latest",
		[]fizz.OperationOption{
			fizz.Summary("Nieuwste versie die het apparaat ondersteunt"),
			apiVersionHeader,
			notFoundResponse,
			badRequestResponse,
		},
		tonic.Handler(controller.LatestSupportedVersion, 200),
	)

	// Schrijf-endpoints
	write := root.Group("", "Schrijven", "Bronnen beheren", middleware.RequireAccess(middleware.ScopeWrite))
	write.POST("/sources",
		[]fizz.OperationOption{
			fizz.Summary("Registreer een nieuwe bron met een catalogus URL"),
			apiVersionHeader,
			badRequestResponse,
		},
		tonic.Handler(controller.CreateSource, 201),
	)

	write.PUT("/sources/:id/refresh",
		[]fizz.OperationOption{
			fizz.Summary("Catalogus van een bron opnieuw ophalen"),
			apiVersionHeader,
			notFoundResponse,
			badRequestResponse,
		},
		tonic.Handler(controller.RefreshSource, 200),
	)

	write.DELETE("/sources/:id",
		[]fizz.OperationOption{
			fizz.Summary("Bron en al haar apps verwijderen"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.DeleteSource, 204),
	)

	f.GET("/v1/openapi.json", []fizz.OperationOption{}, f.OpenAPI(info, "json"))
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return f
}

type apiVersionWriter struct {
	gin.ResponseWriter
	version string
}

func (w *apiVersionWriter) WriteHeader(code int) {
	if code >= 200 && code < 300 {
		w.Header().Set("API-Version", w.version)
	}
	w.ResponseWriter.WriteHeader(code)
}

func APIVersionMiddleware(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &apiVersionWriter{c.Writer, version}
		c.Next()
	}
}
