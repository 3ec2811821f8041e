package router

// IDParam is the name of the path parameter used by routes addressing a
// single resource.
const IDParam = "id"
