package shopsync

var (
	CreateCustomerOrConverge = createCustomerOrConverge
	CreateProductOrConverge  = createProductOrConverge
	CreateOrderOrConverge    = createOrderOrConverge
)
