// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package backend implements the generated REST API

A backend serves every resource of a registry with the same five operations. For a
resource "post" the following routes are created:

	GET /posts
	POST /posts
	GET /posts/{post_id}
	PUT /posts/{post_id}
	PATCH /posts/{post_id}
	DELETE /posts/{post_id}

Pipeline

Every operation runs through the same three stages. The parse stage checks the permission
of the requester and parses query parameters and body, the query stage talks to the store
of the resource, and the transform stage projects the resulting records. The state of a request
moves from parsed to queried to transformed and then to done. The first error moves it to failed,
and the error is written as

	{"type": "invalid_request_error", "message": "Invalid filter field 'secret'", "param": "secret"}

Query parameters

List requests understand

	page, per_page      1-based page and page size (default 100, at most 1000)
	limit, start        legacy page size and raw offset
	sort                comma separated fields, prefix '-' for descending order
	search              case insensitive substring search over the searchable properties
	filter.<field>      equality filter on a filterable property

Every request understands the projection parameters exclude, include and expand. They take
comma separated dot paths, for example

	GET /posts/10?expand=author.address&include=author.balance&exclude=author.address.created_at

List responses carry the headers X-Total-Count, Link and the Pagination-* headers.
The parameter pretty=true|false selects indented or compact JSON. Without it, curl and browsers
get indented JSON.

Both HandleResourceRequest and HandleProjection hook into the pipeline.
*/
package backend
