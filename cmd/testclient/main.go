// Command testclient exercita o testserver com clientes HTTP limitados por
// grate e relata, por cenário, se nenhuma requisição foi rejeitada.
//
// Uso:
//
//	testclient run all
//	testclient run bucketed --bucket-size 5 --bucket-lifetime 1000
//	testclient run simple --simple-ms 200 --base-url http://localhost:8080
package main

func main() {
	Execute()
}
