// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/scaffold/core/access"
	"github.com/relabs-tech/scaffold/core/apierror"
	"github.com/relabs-tech/scaffold/core/logger"
)

var (
	// Version is the version of the current build
	Version = "unset"
)

func (b *Backend) handleVersion(router *mux.Router) {
	logger.Default().Debugln("version")
	logger.Default().Debugln("  handle version route: /version GET")
	router.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		if b.authorizationEnabled {
			auth := access.AuthorizationFromContext(r.Context())
			if !auth.HasRole("admin") {
				b.writeError(w, r, apierror.Forbidden("You do not have permission to perform this action", ""))
				return
			}
		}
		b.writeJSON(w, r, http.StatusOK, map[string]string{"version": Version})
	}).Methods(b.methods(http.MethodGet)...)
}
